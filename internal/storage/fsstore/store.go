// Package fsstore persists order artifacts as individual JSON files in a
// pending and a delivered directory. It is the storage behind the order
// service's dual write and the delivery sweep.
package fsstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/order"
)

var _ order.FileStore = (*Store)(nil)

// Config holds the directory layout and retry bound for the store.
type Config struct {
	PendingDir    string
	DeliveredDir  string
	WriteAttempts int
}

// Store implements order.FileStore on the local filesystem. An artifact
// lives in exactly one of the two directories; MoveToDelivered writes the
// delivered copy before deleting the pending one, so a crash in between
// leaves a duplicate that the next sweep resolves idempotently.
type Store struct {
	pendingDir    string
	deliveredDir  string
	writeAttempts int
	lg            *zap.Logger
}

// New creates both directories if needed and returns the store.
func New(cfg Config, lg *zap.Logger) (*Store, error) {
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = 3
	}
	for _, dir := range []string{cfg.PendingDir, cfg.DeliveredDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	return &Store{
		pendingDir:    cfg.PendingDir,
		deliveredDir:  cfg.DeliveredDir,
		writeAttempts: cfg.WriteAttempts,
		lg:            lg,
	}, nil
}

// artifact is the on-disk JSON shape, kept identical to what the
// storefront historically wrote.
type artifact struct {
	Number      string         `json:"no_order"`
	CustomerID  int64          `json:"id_customer"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Address     string         `json:"address"`
	PaymentType string         `json:"payment_type"`
	Items       []artifactItem `json:"items"`
	Total       float64        `json:"total"`
	Status      string         `json:"status"`
}

type artifactItem struct {
	ProductID int64   `json:"id_product"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Qty       int     `json:"qty"`
}

func toArtifact(o *order.Order) artifact {
	items := make([]artifactItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = artifactItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price.InexactFloat64(),
			Qty:       it.Quantity,
		}
	}
	return artifact{
		Number:      o.Number,
		CustomerID:  o.CustomerID,
		Name:        o.Name,
		Email:       o.Email,
		Address:     o.Address,
		PaymentType: o.PaymentType,
		Items:       items,
		Total:       o.Total.InexactFloat64(),
		Status:      string(o.Status),
	}
}

func (a artifact) toOrder() *order.Order {
	items := make([]order.Item, len(a.Items))
	for i, it := range a.Items {
		items[i] = order.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     decimal.NewFromFloat(it.Price),
			Quantity:  it.Qty,
		}
	}
	return &order.Order{
		Number:      a.Number,
		CustomerID:  a.CustomerID,
		Name:        a.Name,
		Email:       a.Email,
		Address:     a.Address,
		PaymentType: a.PaymentType,
		Items:       items,
		Total:       decimal.NewFromFloat(a.Total),
		Status:      order.Status(a.Status),
	}
}

// Write stores o as a pretty-printed pending artifact, retrying up to the
// configured bound with no backoff.
func (s *Store) Write(ctx context.Context, o *order.Order) error {
	data, err := json.MarshalIndent(toArtifact(o), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal artifact")
	}

	path := s.pendingPath(o.Number)
	var lastErr error
	for attempt := 1; attempt <= s.writeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = os.WriteFile(path, data, 0o644); lastErr == nil {
			return nil
		}
		s.lg.Warn("Artifact write failed",
			zap.String("key", o.Number),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}
	return errors.Wrapf(lastErr, "write %s after %d attempts", path, s.writeAttempts)
}

// Read loads a pending artifact by key.
func (s *Store) Read(_ context.Context, key string) (*order.Order, error) {
	a, err := s.readArtifact(s.pendingPath(key))
	if err != nil {
		return nil, err
	}
	return a.toOrder(), nil
}

// ListPending returns up to limit pending keys in directory enumeration
// order. The order is not guaranteed sorted or fair.
func (s *Store) ListPending(_ context.Context, limit int) ([]string, error) {
	entries, err := os.ReadDir(s.pendingDir)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.pendingDir)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
		if limit > 0 && len(keys) == limit {
			break
		}
	}
	return keys, nil
}

// MoveToDelivered flips the artifact status to delivered and relocates
// it, deleting the pending copy only after the delivered copy is written.
// If the delivered copy already exists (a previous sweep crashed between
// write and delete, or the key is being reprocessed) the write is
// skipped and only the stale pending copy is removed.
func (s *Store) MoveToDelivered(_ context.Context, key string) error {
	src := s.pendingPath(key)
	dst := filepath.Join(s.deliveredDir, key+".json")

	if _, err := os.Stat(dst); err == nil {
		s.lg.Info("Delivered artifact already exists, skipping rewrite",
			zap.String("key", key))
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove stale %s", src)
		}
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "stat %s", dst)
	}

	a, err := s.readArtifact(src)
	if err != nil {
		return err
	}
	a.Status = string(order.StatusDelivered)

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal artifact")
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", dst)
	}
	if err := os.Remove(src); err != nil {
		return errors.Wrapf(err, "remove %s", src)
	}
	return nil
}

func (s *Store) pendingPath(key string) string {
	return filepath.Join(s.pendingDir, key+".json")
}

func (s *Store) readArtifact(path string) (artifact, error) {
	var a artifact
	data, err := os.ReadFile(path)
	if err != nil {
		return a, errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, errors.Wrapf(err, "decode %s", path)
	}
	return a, nil
}
