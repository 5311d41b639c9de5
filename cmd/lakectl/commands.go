package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stevenmeyer142/pintler-va-app/internal/datastores"
	"github.com/stevenmeyer142/pintler-va-app/internal/lifecycle"
	"github.com/stevenmeyer142/pintler-va-app/internal/objectstore"
	"github.com/stevenmeyer142/pintler-va-app/internal/validation"
)

type Invoker interface {
	Invoke(ctx context.Context, operation string, args json.RawMessage) lifecycle.Response
}

type Stager interface {
	StagePatientRecord(ctx context.Context, patientICN, key string, content []byte, kmsKeyID string) (string, error)
}

// env is what the commands run against.
type env struct {
	lifecycle Invoker
	records   datastores.Store
	objects   Stager
	hub       *datastores.Hub
	// forward relays the cross-process change feed into hub; nil without Redis.
	forward  func(ctx context.Context) error
	kmsKeyID string
	close    func()
}

var errOperationFailed = errors.New("operation failed")

// newRootCmd builds the command tree. The returned func releases whatever
// build produced and is safe to call when nothing was built.
func newRootCmd(build func(ctx context.Context) (*env, error)) (*cobra.Command, func()) {
	var e *env
	root := &cobra.Command{
		Use:           "lakectl",
		Short:         "Manage patient FHIR datastores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			e, err = build(cmd.Context())
			return err
		},
	}
	release := func() {
		if e != nil && e.close != nil {
			e.close()
		}
	}
	current := func() *env { return e }

	root.AddCommand(
		stageCmd(current),
		convertCmd(current),
		createCmd(current),
		importCmd(current),
		deleteCmd(current),
		deleteBucketCmd(current),
		getCmd(current),
		listCmd(current),
		watchCmd(current),
	)
	return root, release
}

func stageCmd(e func() *env) *cobra.Command {
	var icn, key, file string
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Create an encrypted patient bucket and upload a bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			if key == "" {
				key = "patient_bundle.json"
			}
			bucket, err := e().objects.StagePatientRecord(cmd.Context(), icn, key, content, e().kmsKeyID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"bucket_name": bucket,
				"s3_uri":      objectstore.S3URI(bucket, key),
			})
		},
	}
	cmd.Flags().StringVar(&icn, "icn", "", "patient ICN")
	cmd.Flags().StringVar(&key, "key", "", "object key (default patient_bundle.json)")
	cmd.Flags().StringVar(&file, "file", "", "path to the FHIR bundle")
	_ = cmd.MarkFlagRequired("icn")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func convertCmd(e func() *env) *cobra.Command {
	var req validation.JSONToNDJSONRequest
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a staged bundle to NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, e(), lifecycle.OpJSONToNDJSON, req)
		},
	}
	cmd.Flags().StringVar(&req.BucketName, "bucket", "", "bucket name")
	cmd.Flags().StringVar(&req.JSONFileKey, "json-key", "", "source JSON key")
	cmd.Flags().StringVar(&req.NDJSONFileKey, "ndjson-key", "", "target NDJSON key")
	return cmd
}

func createCmd(e func() *env) *cobra.Command {
	var req validation.CreateDataStoreRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a datastore and wait until it is active",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.ID == "" {
				req.ID = req.S3Input
			}
			return invoke(cmd, e(), lifecycle.OpCreateDataStore, req)
		},
	}
	cmd.Flags().StringVar(&req.ID, "id", "", "record id (default: --s3-input)")
	cmd.Flags().StringVar(&req.Name, "name", "", "datastore name")
	cmd.Flags().StringVar(&req.S3Input, "s3-input", "", "staged input s3:// URI")
	cmd.Flags().StringVar(&req.PatientICN, "icn", "", "patient ICN")
	return cmd
}

func importCmd(e func() *env) *cobra.Command {
	var req validation.ImportFHIRRequest
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the staged input into the record's datastore",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, e(), lifecycle.OpImportFHIR, req)
		},
	}
	cmd.Flags().StringVar(&req.ID, "id", "", "record id")
	return cmd
}

func deleteCmd(e func() *env) *cobra.Command {
	var req validation.DeleteDatastoreRequest
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the bucket, datastore and record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, e(), lifecycle.OpDeleteDatastore, req)
		},
	}
	cmd.Flags().StringVar(&req.HealthRecordID, "id", "", "record id")
	return cmd
}

func deleteBucketCmd(e func() *env) *cobra.Command {
	var req validation.DeleteBucketRequest
	cmd := &cobra.Command{
		Use:   "delete-bucket",
		Short: "Empty and remove a staging bucket no record tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, e(), lifecycle.OpDeleteBucket, req)
		},
	}
	cmd.Flags().StringVar(&req.BucketName, "bucket", "", "bucket name")
	return cmd
}

func getCmd(e func() *env) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one record",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := e().records.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("missing HealthLakeDatastore record for id %s", id)
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "record id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func listCmd(e func() *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every record",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := e().records.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
}

func watchCmd(e func() *env) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the current records, then every change, until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cur := e()
			if cur.forward == nil {
				return errors.New("watch needs REDIS_ADDR to follow other processes")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := cur.forward(ctx); err != nil {
				return err
			}
			return watch(ctx, cmd.OutOrStdout(), cur.records, cur.hub, id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "record id (default: every record)")
	return cmd
}

// watch writes the snapshot, then one JSON line per event, until ctx ends.
func watch(ctx context.Context, out io.Writer, records datastores.Store, hub *datastores.Hub, id string) error {
	snapshot, sub, err := datastores.Watch(ctx, records, hub, id)
	if err != nil {
		return err
	}
	defer sub.Close()

	enc := json.NewEncoder(out)
	if err := enc.Encode(map[string]any{"type": "snapshot", "records": snapshot}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-sub.Events():
			if !open {
				return nil
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
	}
}

func invoke(cmd *cobra.Command, e *env, op string, req any) error {
	args, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp := e.lifecycle.Invoke(cmd.Context(), op, args)
	if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", errOperationFailed, resp.Message)
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
