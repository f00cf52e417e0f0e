package config

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
	"gorm.io/gorm"
)

// ProductAffecting is implemented by models whose rows feed stock projections.
type ProductAffecting interface {
	AffectedProducts() []projection.ProductKey
}

// Invalidator receives the products touched by a committed write. An empty slice means the
// write touched an invalidating table but its products could not be resolved.
type Invalidator func(ctx context.Context, products []projection.ProductKey)

// InvalidationPlugin calls the invalidator after every committed create/update/delete on an
// invalidating table.
//
// NOTE:
//   - Inside a bare db.Transaction the callback fires before the outer commit. Writers that
//     run multi-statement transactions go through (*InvalidationPlugin).Transaction, which
//     holds the invalidations until the commit succeeds.
//   - Bulk jobs opt out with utils.SetSkipInvalidationInContext and invalidate once at the end.
type InvalidationPlugin struct {
	invalidate Invalidator
	tables     map[string]bool
}

func NewInvalidationPlugin(invalidate Invalidator) *InvalidationPlugin {
	return &InvalidationPlugin{invalidate: invalidate, tables: InvalidatingTables()}
}

type pendingInvalidationsKey struct{}

// pendingInvalidations collects the products written inside one transaction.
type pendingInvalidations struct {
	mu       sync.Mutex
	all      bool
	seen     map[projection.ProductKey]bool
	products []projection.ProductKey
}

func withPendingInvalidations(ctx context.Context) (context.Context, *pendingInvalidations) {
	pending := &pendingInvalidations{seen: make(map[projection.ProductKey]bool)}
	return context.WithValue(ctx, pendingInvalidationsKey{}, pending), pending
}

func (pi *pendingInvalidations) add(products []projection.ProductKey) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if len(products) == 0 {
		pi.all = true
		return
	}
	for _, key := range products {
		if !pi.seen[key] {
			pi.seen[key] = true
			pi.products = append(pi.products, key)
		}
	}
}

func (pi *pendingInvalidations) flush(ctx context.Context, invalidate Invalidator) {
	pi.mu.Lock()
	all, products := pi.all, pi.products
	pi.all, pi.products, pi.seen = false, nil, make(map[projection.ProductKey]bool)
	pi.mu.Unlock()
	switch {
	case all:
		invalidate(ctx, nil)
	case len(products) > 0:
		invalidate(ctx, products)
	}
}

// Transaction runs fn in a transaction and invalidates what it wrote once the commit has
// succeeded. A rolled back transaction invalidates nothing.
func (p *InvalidationPlugin) Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	ctx, pending := withPendingInvalidations(ctx)
	if err := db.WithContext(ctx).Transaction(fn); err != nil {
		return err
	}
	if p.invalidate != nil {
		pending.flush(ctx, p.invalidate)
	}
	return nil
}

func (p *InvalidationPlugin) Name() string { return "projection_invalidation" }

func (p *InvalidationPlugin) Initialize(db *gorm.DB) error {
	// Create
	if err := db.Callback().Create().After("gorm:commit_or_rollback_transaction").Register("projection_invalidation:create", p.callback); err != nil {
		return err
	}
	// Update
	if err := db.Callback().Update().After("gorm:commit_or_rollback_transaction").Register("projection_invalidation:update", p.callback); err != nil {
		return err
	}
	// Delete
	if err := db.Callback().Delete().After("gorm:commit_or_rollback_transaction").Register("projection_invalidation:delete", p.callback); err != nil {
		return err
	}
	return nil
}

func (p *InvalidationPlugin) callback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Error != nil || p.invalidate == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if utils.SkipInvalidation(ctx) {
		return
	}
	if !p.tables[strings.ToLower(db.Statement.Table)] {
		return
	}
	products := affectedProducts(db.Statement.ReflectValue)
	if pending, ok := ctx.Value(pendingInvalidationsKey{}).(*pendingInvalidations); ok {
		pending.add(products)
		return
	}
	p.invalidate(ctx, products)
}

func affectedProducts(v reflect.Value) []projection.ProductKey {
	seen := make(map[projection.ProductKey]bool)
	var out []projection.ProductKey
	collect := func(item reflect.Value) {
		for item.Kind() == reflect.Ptr || item.Kind() == reflect.Interface {
			if item.IsNil() {
				return
			}
			item = item.Elem()
		}
		if !item.CanAddr() {
			copied := reflect.New(item.Type()).Elem()
			copied.Set(item)
			item = copied
		}
		pa, ok := item.Addr().Interface().(ProductAffecting)
		if !ok {
			return
		}
		for _, key := range pa.AffectedProducts() {
			if key != "" && !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		}
	}

	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			collect(v.Index(i))
		}
	default:
		collect(v)
	}
	return out
}
