package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/types"
)

// FirestoreProvider implements Database using Google Cloud Firestore. Runs
// live at runs/{id} and their cases at runs/{id}/cases/{iteration}, each as
// a JSON string.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

var _ Database = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator-host", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) cases(runID string) (*firestore.CollectionRef, error) {
	if runID == "" {
		return nil, ErrNoRunID
	}
	return f.client.Collection("runs").Doc(runID).Collection("cases"), nil
}

// docJSON unmarshals the "json" field of doc into dst.
func docJSON(ctx context.Context, doc *firestore.DocumentSnapshot, dst any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("path", doc.Ref.Path), slog.Any("err", err))
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("path", doc.Ref.Path))
		return fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), dst); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc json", slog.String("path", doc.Ref.Path), slog.Any("err", err))
		return fmt.Errorf("failed to unmarshal document %s: %w", doc.Ref.ID, err)
	}
	return nil
}

// CreateRun implements Database.
func (f *FirestoreProvider) CreateRun(ctx context.Context, run types.Run) error {
	if run.ID == "" {
		return ErrNoRunID
	}
	jsonBytes, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	_, err = f.client.Collection("runs").Doc(run.ID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"startedAt": run.StartedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// RecordCase implements Database. The document ID is the zero padded
// iteration so IDs sort in evaluation order.
func (f *FirestoreProvider) RecordCase(ctx context.Context, c types.Case) error {
	coll, err := f.cases(c.RunID)
	if err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}
	_, err = coll.Doc(fmt.Sprintf("%08d", c.Iteration)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"iteration": c.Iteration,
		"version":   types.CurrentCaseVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to record case: %w", err)
	}
	return nil
}

// GetRun implements Database.
func (f *FirestoreProvider) GetRun(ctx context.Context, runID string) (types.Run, error) {
	if runID == "" {
		return types.Run{}, ErrNoRunID
	}
	doc, err := f.client.Collection("runs").Doc(runID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return types.Run{}, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	var run types.Run
	if err := docJSON(ctx, doc, &run); err != nil {
		return types.Run{}, err
	}
	return run, nil
}

// ListRuns implements Database. Malformed runs are skipped.
func (f *FirestoreProvider) ListRuns(ctx context.Context) ([]types.Run, error) {
	iter := f.client.Collection("runs").
		OrderBy("startedAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var runs []types.Run
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating runs: %w", err)
		}
		var run types.Run
		if err := docJSON(ctx, doc, &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ListCases implements Database.
func (f *FirestoreProvider) ListCases(ctx context.Context, runID string) ([]types.Case, error) {
	coll, err := f.cases(runID)
	if err != nil {
		return nil, err
	}
	iter := coll.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var cases []types.Case
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating cases: %w", err)
		}

		var c types.Case
		if err := docJSON(ctx, doc, &c); err != nil {
			return nil, err
		}

		// Read version if available (default 0)
		var version int
		if v, err := doc.DataAt("version"); err == nil {
			if vInt, ok := v.(int64); ok {
				version = int(vInt)
			}
		}
		c, err = migrate(ctx, c, version)
		if err != nil {
			return nil, fmt.Errorf("failed to migrate case %s: %w", doc.Ref.ID, err)
		}
		cases = append(cases, c)
	}
	return cases, nil
}
