// Package firestore backs the cloud reconciliation ports with a per-user
// Firestore document tree: users/{uid}/categories/{id},
// users/{uid}/transactions/{id}, users/{uid}/savingsGoals/{id} and a single
// users/{uid}/settings/app document. Every push is one batched commit and
// every document carries a server-assigned syncedAt timestamp.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pennywise/internal/cloud"
	"pennywise/internal/core"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"

	gfirestore "google.golang.org/api/firestore/v1"
)

const (
	colCategories   = "categories"
	colTransactions = "transactions"
	colGoals        = "savingsGoals"
	syncedAtField   = "syncedAt"
)

type Client struct {
	svc       *gfirestore.Service
	projectID string
	database  string
}

// Ensure interface conformance
var _ cloud.Store = (*Client)(nil)

// NewFromEnv creates a Firestore client using environment variables and ADC.
// Required: FIRESTORE_PROJECT_ID
// Optional: FIRESTORE_DATABASE_ID (default "(default)"),
// GOOGLE_APPLICATION_CREDENTIALS for auth.
func NewFromEnv(ctx context.Context) (*Client, error) {
	projectID := strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID"))
	if projectID == "" {
		return nil, errors.New("missing FIRESTORE_PROJECT_ID")
	}
	database := strings.TrimSpace(os.Getenv("FIRESTORE_DATABASE_ID"))
	if database == "" {
		database = "(default)"
	}

	var opts []goption.ClientOption
	if creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); creds != "" {
		opts = append(opts, goption.WithCredentialsFile(creds))
	}

	svc, err := gfirestore.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore service: %w", err)
	}

	return &Client{svc: svc, projectID: projectID, database: database}, nil
}

func (c *Client) databasePath() string {
	return fmt.Sprintf("projects/%s/databases/%s", c.projectID, c.database)
}

func (c *Client) documentsRoot() string {
	return c.databasePath() + "/documents"
}

func (c *Client) userPath(userID string) string {
	return fmt.Sprintf("%s/users/%s", c.documentsRoot(), userID)
}

func (c *Client) settingsDocPath(userID string) string {
	return c.userPath(userID) + "/settings/app"
}

// Push upserts every entity in the snapshot as one atomic batched commit.
// Each write carries a syncedAt server-timestamp transform.
func (c *Client) Push(ctx context.Context, userID string, snap cloud.Snapshot) error {
	var writes []*gfirestore.Write

	for _, cat := range snap.Categories {
		name := fmt.Sprintf("%s/%s/%d", c.userPath(userID), colCategories, cat.ID)
		writes = append(writes, upsertWrite(name, encodeCategory(cat)))
	}
	for _, tx := range snap.Transactions {
		name := fmt.Sprintf("%s/%s/%d", c.userPath(userID), colTransactions, tx.ID)
		writes = append(writes, upsertWrite(name, encodeTransaction(tx)))
	}
	for _, g := range snap.SavingsGoals {
		name := fmt.Sprintf("%s/%s/%d", c.userPath(userID), colGoals, g.ID)
		writes = append(writes, upsertWrite(name, encodeGoal(g)))
	}
	writes = append(writes, upsertWrite(c.settingsDocPath(userID), encodeSettingsMap(snap.Settings.Values())))

	_, err := c.svc.Projects.Databases.Documents.
		Commit(c.databasePath(), &gfirestore.CommitRequest{Writes: writes}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("commit push batch: %w", err)
	}
	return nil
}

// Pull reads every document under the user's namespace and strips sync
// metadata from the result.
func (c *Client) Pull(ctx context.Context, userID string) (cloud.Snapshot, error) {
	var snap cloud.Snapshot

	catDocs, err := c.listCollection(ctx, userID, colCategories)
	if err != nil {
		return snap, fmt.Errorf("pull categories: %w", err)
	}
	for _, doc := range catDocs {
		snap.Categories = append(snap.Categories, decodeCategory(doc))
	}

	txDocs, err := c.listCollection(ctx, userID, colTransactions)
	if err != nil {
		return snap, fmt.Errorf("pull transactions: %w", err)
	}
	for _, doc := range txDocs {
		snap.Transactions = append(snap.Transactions, decodeTransaction(doc))
	}

	goalDocs, err := c.listCollection(ctx, userID, colGoals)
	if err != nil {
		return snap, fmt.Errorf("pull savings goals: %w", err)
	}
	for _, doc := range goalDocs {
		snap.SavingsGoals = append(snap.SavingsGoals, decodeGoal(doc))
	}

	settingsDoc, err := c.getDocument(ctx, c.settingsDocPath(userID))
	if err != nil {
		return snap, fmt.Errorf("pull settings: %w", err)
	}
	if settingsDoc != nil {
		snap.Settings = core.ParseSettings(decodeSettingsMap(settingsDoc))
	} else {
		snap.Settings = core.DefaultSettings()
	}

	return snap, nil
}

// LastSyncTime returns the settings document's server-assigned sync
// timestamp, or the zero time when no backup exists.
func (c *Client) LastSyncTime(ctx context.Context, userID string) (time.Time, error) {
	doc, err := c.getDocument(ctx, c.settingsDocPath(userID))
	if err != nil {
		return time.Time{}, err
	}
	if doc == nil {
		return time.Time{}, nil
	}
	if v, ok := doc.Fields[syncedAtField]; ok && v.TimestampValue != "" {
		if t, err := time.Parse(time.RFC3339Nano, v.TimestampValue); err == nil {
			return t, nil
		}
	}
	// Fall back to the document's own update time.
	if doc.UpdateTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, doc.UpdateTime); err == nil {
			return t, nil
		}
	}
	return time.Time{}, nil
}

// HasBackup reports whether the user's settings document exists.
func (c *Client) HasBackup(ctx context.Context, userID string) (bool, error) {
	doc, err := c.getDocument(ctx, c.settingsDocPath(userID))
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// DeleteAll batch-deletes every document under the user's namespace.
func (c *Client) DeleteAll(ctx context.Context, userID string) error {
	var writes []*gfirestore.Write

	for _, col := range []string{colCategories, colTransactions, colGoals} {
		docs, err := c.listCollection(ctx, userID, col)
		if err != nil {
			return fmt.Errorf("list %s for delete: %w", col, err)
		}
		for _, doc := range docs {
			writes = append(writes, &gfirestore.Write{Delete: doc.Name})
		}
	}
	writes = append(writes, &gfirestore.Write{Delete: c.settingsDocPath(userID)})

	_, err := c.svc.Projects.Databases.Documents.
		Commit(c.databasePath(), &gfirestore.CommitRequest{Writes: writes}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("commit delete batch: %w", err)
	}
	return nil
}

func (c *Client) listCollection(ctx context.Context, userID, collection string) ([]*gfirestore.Document, error) {
	var docs []*gfirestore.Document
	call := c.svc.Projects.Databases.Documents.List(c.userPath(userID), collection).PageSize(300)
	err := call.Pages(ctx, func(resp *gfirestore.ListDocumentsResponse) error {
		docs = append(docs, resp.Documents...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// getDocument fetches a document, mapping not-found to (nil, nil).
func (c *Client) getDocument(ctx context.Context, name string) (*gfirestore.Document, error) {
	doc, err := c.svc.Projects.Databases.Documents.Get(name).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

func upsertWrite(name string, fields map[string]gfirestore.Value) *gfirestore.Write {
	return &gfirestore.Write{
		Update: &gfirestore.Document{Name: name, Fields: fields},
		UpdateTransforms: []*gfirestore.FieldTransform{
			{FieldPath: syncedAtField, SetToServerValue: "REQUEST_TIME"},
		},
	}
}

// --- field encoding ---

func fieldStr(f map[string]gfirestore.Value, key string) string {
	if v, ok := f[key]; ok {
		return v.StringValue
	}
	return ""
}

func fieldInt(f map[string]gfirestore.Value, key string) int64 {
	if v, ok := f[key]; ok {
		return v.IntegerValue
	}
	return 0
}

func fieldBool(f map[string]gfirestore.Value, key string) bool {
	if v, ok := f[key]; ok {
		return v.BooleanValue
	}
	return false
}

func strValue(s string) gfirestore.Value {
	return gfirestore.Value{StringValue: s, ForceSendFields: []string{"StringValue"}}
}

func intValue(i int64) gfirestore.Value {
	return gfirestore.Value{IntegerValue: i, ForceSendFields: []string{"IntegerValue"}}
}

func boolValue(b bool) gfirestore.Value {
	return gfirestore.Value{BooleanValue: b, ForceSendFields: []string{"BooleanValue"}}
}

func nullValue() gfirestore.Value {
	return gfirestore.Value{NullValue: "NULL_VALUE", ForceSendFields: []string{"NullValue"}}
}

func encodeCategory(c core.Category) map[string]gfirestore.Value {
	return map[string]gfirestore.Value{
		"id":                   intValue(c.ID),
		"name":                 strValue(c.Name),
		"monthly_budget_cents": intValue(c.MonthlyBudget.Cents),
		"exclude_from_limits":  boolValue(c.ExcludeFromLimits),
	}
}

func decodeCategory(doc *gfirestore.Document) core.Category {
	f := doc.Fields
	return core.Category{
		ID:                fieldInt(f, "id"),
		Name:              fieldStr(f, "name"),
		MonthlyBudget:     core.Money{Cents: fieldInt(f, "monthly_budget_cents")},
		ExcludeFromLimits: fieldBool(f, "exclude_from_limits"),
	}
}

func encodeTransaction(t core.Transaction) map[string]gfirestore.Value {
	fields := map[string]gfirestore.Value{
		"id":                  intValue(t.ID),
		"type":                strValue(string(t.Type)),
		"amount_cents":        intValue(t.Amount.Cents),
		"date":                strValue(t.Date.ISO()),
		"tags":                strValue(t.Tags),
		"receipt_uri":         strValue(t.ReceiptURI),
		"is_recurring":        boolValue(t.IsRecurring),
		"frequency":           strValue(string(t.Frequency)),
		"next_run_date":       strValue(t.NextRunDate.ISO()),
		"exclude_from_limits": boolValue(t.ExcludeFromLimits),
	}
	if t.CategoryID != nil {
		fields["category_id"] = intValue(*t.CategoryID)
	} else {
		fields["category_id"] = nullValue()
	}
	return fields
}

func decodeTransaction(doc *gfirestore.Document) core.Transaction {
	f := doc.Fields
	t := core.Transaction{
		ID:                fieldInt(f, "id"),
		Type:              core.TxType(fieldStr(f, "type")),
		Amount:            core.Money{Cents: fieldInt(f, "amount_cents")},
		Tags:              fieldStr(f, "tags"),
		ReceiptURI:        fieldStr(f, "receipt_uri"),
		IsRecurring:       fieldBool(f, "is_recurring"),
		Frequency:         core.Frequency(fieldStr(f, "frequency")),
		ExcludeFromLimits: fieldBool(f, "exclude_from_limits"),
	}
	if d, err := core.ParseDate(fieldStr(f, "date")); err == nil {
		t.Date = d
	}
	if d, err := core.ParseDate(fieldStr(f, "next_run_date")); err == nil {
		t.NextRunDate = d
	}
	if v, ok := f["category_id"]; ok && v.NullValue == "" {
		id := v.IntegerValue
		t.CategoryID = &id
	}
	return t
}

func encodeGoal(g core.SavingsGoal) map[string]gfirestore.Value {
	return map[string]gfirestore.Value{
		"id":                   intValue(g.ID),
		"name":                 strValue(g.Name),
		"target_amount_cents":  intValue(g.TargetAmount.Cents),
		"current_amount_cents": intValue(g.CurrentAmount.Cents),
		"deadline":             strValue(g.Deadline.ISO()),
	}
}

func decodeGoal(doc *gfirestore.Document) core.SavingsGoal {
	f := doc.Fields
	g := core.SavingsGoal{
		ID:            fieldInt(f, "id"),
		Name:          fieldStr(f, "name"),
		TargetAmount:  core.Money{Cents: fieldInt(f, "target_amount_cents")},
		CurrentAmount: core.Money{Cents: fieldInt(f, "current_amount_cents")},
	}
	if d, err := core.ParseDate(fieldStr(f, "deadline")); err == nil {
		g.Deadline = d
	}
	return g
}

func encodeSettingsMap(values map[string]string) map[string]gfirestore.Value {
	fields := make(map[string]gfirestore.Value, len(values))
	for k, v := range values {
		fields[k] = strValue(v)
	}
	return fields
}

// decodeSettingsMap flattens a settings document back to raw key/value pairs,
// dropping the syncedAt metadata field.
func decodeSettingsMap(doc *gfirestore.Document) map[string]string {
	out := make(map[string]string, len(doc.Fields))
	for k, v := range doc.Fields {
		if k == syncedAtField {
			continue
		}
		switch {
		case v.StringValue != "":
			out[k] = v.StringValue
		case v.BooleanValue:
			out[k] = "true"
		case v.IntegerValue != 0:
			out[k] = strconv.FormatInt(v.IntegerValue, 10)
		}
	}
	return out
}
