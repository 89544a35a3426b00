package transform

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/factflow/internal/model"
	"github.com/JonMunkholm/factflow/internal/store"
)

// Resolver interns dimension values for the concurrent workers of one run.
// Lookups for the same key collapse into a single store call; the store's
// uniqueness constraint covers races across jobs and processes. The cache
// lives as long as the run.
type Resolver struct {
	dims  store.Dimensions
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]uuid.UUID
}

// NewResolver returns a resolver backed by dims.
func NewResolver(dims store.Dimensions) *Resolver {
	return &Resolver{dims: dims, cache: make(map[string]uuid.UUID)}
}

func (r *Resolver) lookup(key string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[key]
	return id, ok
}

func (r *Resolver) resolve(key string, create func() (uuid.UUID, error)) (uuid.UUID, error) {
	if id, ok := r.lookup(key); ok {
		return id, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if id, ok := r.lookup(key); ok {
			return id, nil
		}
		id, err := create()
		if err != nil {
			return uuid.Nil, err
		}
		r.mu.Lock()
		r.cache[key] = id
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return v.(uuid.UUID), nil
}

// Indicator returns the ID of ind, creating it when new. The key includes
// the enrichment fields so a later row carrying a unit still reaches the
// store.
func (r *Resolver) Indicator(ctx context.Context, ind model.Indicator) (uuid.UUID, error) {
	key := "i\x00" + ind.Name + "\x00" + ind.Unit + "\x00" + ind.Source + "\x00" + ind.Goal
	return r.resolve(key, func() (uuid.UUID, error) {
		got, err := r.dims.GetOrCreateIndicator(ctx, ind)
		return got.ID, err
	})
}

// Time returns the ID of a time label.
func (r *Resolver) Time(ctx context.Context, value string) (uuid.UUID, error) {
	return r.resolve("t\x00"+value, func() (uuid.UUID, error) {
		got, err := r.dims.GetOrCreateTime(ctx, value)
		return got.ID, err
	})
}

// Location returns the ID of a location label.
func (r *Resolver) Location(ctx context.Context, value string) (uuid.UUID, error) {
	return r.resolve("l\x00"+value, func() (uuid.UUID, error) {
		got, err := r.dims.GetOrCreateLocation(ctx, value)
		return got.ID, err
	})
}

// Generic returns the ID of a (dimension name, value) pair.
func (r *Resolver) Generic(ctx context.Context, name, value string) (uuid.UUID, error) {
	return r.resolve("g\x00"+name+"\x00"+value, func() (uuid.UUID, error) {
		got, err := r.dims.GetOrCreateGeneric(ctx, name, value)
		return got.ID, err
	})
}

// Record resolves every coordinate of obs into a fact record. Invalid
// observations keep a nil indicator and are not interned.
func (r *Resolver) Record(ctx context.Context, obs Observation, jobID uuid.UUID, sourceFile string) (model.FactRecord, error) {
	rec := model.FactRecord{
		ID:              uuid.New(),
		JobID:           jobID,
		Value:           obs.Value,
		SourceFile:      sourceFile,
		SourceRowNumber: obs.Row,
		SourceRowHash:   obs.Hash,
		ConfidenceScore: obs.Confidence,
	}
	if obs.Indicator.Name == "" || !obs.Value.Valid {
		return rec, nil
	}

	var err error
	if rec.IndicatorID, err = r.Indicator(ctx, obs.Indicator); err != nil {
		return rec, model.Infra("resolve indicator", err)
	}
	if obs.Time != "" {
		id, err := r.Time(ctx, obs.Time)
		if err != nil {
			return rec, model.Infra("resolve time", err)
		}
		rec.TimeID = &id
	}
	if obs.Location != "" {
		id, err := r.Location(ctx, obs.Location)
		if err != nil {
			return rec, model.Infra("resolve location", err)
		}
		rec.LocationID = &id
	}
	for _, g := range obs.Generics {
		id, err := r.Generic(ctx, g.Name, g.Value)
		if err != nil {
			return rec, model.Infra("resolve generic", err)
		}
		rec.GenericIDs = append(rec.GenericIDs, id)
	}
	return rec, nil
}
