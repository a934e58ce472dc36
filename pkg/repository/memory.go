package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/volunteermatching/volops/pkg/types"
)

var errTxDone = errors.New("transaction already committed or rolled back")

// MemoryBackend implements BackendRepository using in-memory storage.
// This is used for local mode where we don't have Postgres.
//
// Units of work are serialized by writeMu. Each Tx mutates a private copy of
// the committed state which replaces it on Commit, so readers never observe
// a partial write.
type MemoryBackend struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	data    *memoryData
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: newMemoryData()}
}

func (b *MemoryBackend) Begin(ctx context.Context) (Tx, error) {
	b.writeMu.Lock()

	b.mu.RLock()
	snapshot := b.data.clone()
	b.mu.RUnlock()

	return &memoryTx{memoryData: snapshot, backend: b}, nil
}

func (b *MemoryBackend) Ping(ctx context.Context) error { return nil }
func (b *MemoryBackend) Close() error                   { return nil }
func (b *MemoryBackend) RunMigrations() error           { return nil }

func (b *MemoryBackend) read(fn func(d *memoryData) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fn(b.data)
}

// write runs fn as its own unit of work
func (b *MemoryBackend) write(ctx context.Context, fn func(d *memoryData) error) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx.(*memoryTx).memoryData); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *MemoryBackend) CreateOpportunity(ctx context.Context, o *types.Opportunity) error {
	return b.write(ctx, func(d *memoryData) error { return d.CreateOpportunity(ctx, o) })
}

func (b *MemoryBackend) GetOpportunity(ctx context.Context, id uint) (o *types.Opportunity, err error) {
	err = b.read(func(d *memoryData) error { o, err = d.GetOpportunity(ctx, id); return err })
	return o, err
}

func (b *MemoryBackend) GetOpportunityByName(ctx context.Context, name string) (o *types.Opportunity, err error) {
	err = b.read(func(d *memoryData) error { o, err = d.GetOpportunityByName(ctx, name); return err })
	return o, err
}

func (b *MemoryBackend) ListOpportunities(ctx context.Context, opts types.ListOptions) (list []*types.Opportunity, err error) {
	err = b.read(func(d *memoryData) error { list, err = d.ListOpportunities(ctx, opts); return err })
	return list, err
}

func (b *MemoryBackend) CountOpportunities(ctx context.Context, opts types.ListOptions) (n int, err error) {
	err = b.read(func(d *memoryData) error { n, err = d.CountOpportunities(ctx, opts); return err })
	return n, err
}

func (b *MemoryBackend) UpdateOpportunity(ctx context.Context, o *types.Opportunity) error {
	return b.write(ctx, func(d *memoryData) error { return d.UpdateOpportunity(ctx, o) })
}

func (b *MemoryBackend) DeleteOpportunity(ctx context.Context, id uint) error {
	return b.write(ctx, func(d *memoryData) error { return d.DeleteOpportunity(ctx, id) })
}

func (b *MemoryBackend) CreateFrequency(ctx context.Context, name string) (f *types.Frequency, err error) {
	err = b.write(ctx, func(d *memoryData) error { f, err = d.CreateFrequency(ctx, name); return err })
	return f, err
}

func (b *MemoryBackend) GetFrequency(ctx context.Context, id uint) (f *types.Frequency, err error) {
	err = b.read(func(d *memoryData) error { f, err = d.GetFrequency(ctx, id); return err })
	return f, err
}

func (b *MemoryBackend) GetFrequencyByName(ctx context.Context, name string) (f *types.Frequency, err error) {
	err = b.read(func(d *memoryData) error { f, err = d.GetFrequencyByName(ctx, name); return err })
	return f, err
}

func (b *MemoryBackend) ListFrequencies(ctx context.Context) (list []*types.Frequency, err error) {
	err = b.read(func(d *memoryData) error { list, err = d.ListFrequencies(ctx); return err })
	return list, err
}

func (b *MemoryBackend) UpdateFrequency(ctx context.Context, f *types.Frequency) error {
	return b.write(ctx, func(d *memoryData) error { return d.UpdateFrequency(ctx, f) })
}

func (b *MemoryBackend) DeleteFrequency(ctx context.Context, id uint) error {
	return b.write(ctx, func(d *memoryData) error { return d.DeleteFrequency(ctx, id) })
}

func (b *MemoryBackend) GetPartner(ctx context.Context, id uint) (p *types.Partner, err error) {
	err = b.read(func(d *memoryData) error { p, err = d.GetPartner(ctx, id); return err })
	return p, err
}

func (b *MemoryBackend) GetPartnerByName(ctx context.Context, name string) (p *types.Partner, err error) {
	err = b.read(func(d *memoryData) error { p, err = d.GetPartnerByName(ctx, name); return err })
	return p, err
}

func (b *MemoryBackend) EnsurePartner(ctx context.Context, name string, tags []string) (p *types.Partner, err error) {
	err = b.write(ctx, func(d *memoryData) error { p, err = d.EnsurePartner(ctx, name, tags); return err })
	return p, err
}

type memoryTx struct {
	*memoryData
	backend *MemoryBackend
	done    bool
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true

	t.backend.mu.Lock()
	t.backend.data = t.memoryData
	t.backend.mu.Unlock()

	t.backend.writeMu.Unlock()
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.backend.writeMu.Unlock()
	return nil
}

// memoryData is one version of the store. It is not safe for concurrent use;
// MemoryBackend guards it. Values handed out are copies.
type memoryData struct {
	opportunities map[uint]*types.Opportunity
	frequencies   map[uint]*types.Frequency
	partners      map[uint]*types.Partner

	nextOpportunityId uint
	nextFrequencyId   uint
	nextPartnerId     uint
}

func newMemoryData() *memoryData {
	return &memoryData{
		opportunities:     make(map[uint]*types.Opportunity),
		frequencies:       make(map[uint]*types.Frequency),
		partners:          make(map[uint]*types.Partner),
		nextOpportunityId: 1,
		nextFrequencyId:   1,
		nextPartnerId:     1,
	}
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		opportunities:     make(map[uint]*types.Opportunity, len(d.opportunities)),
		frequencies:       make(map[uint]*types.Frequency, len(d.frequencies)),
		partners:          make(map[uint]*types.Partner, len(d.partners)),
		nextOpportunityId: d.nextOpportunityId,
		nextFrequencyId:   d.nextFrequencyId,
		nextPartnerId:     d.nextPartnerId,
	}
	for id, o := range d.opportunities {
		c.opportunities[id] = copyOpportunity(o)
	}
	for id, f := range d.frequencies {
		cp := *f
		c.frequencies[id] = &cp
	}
	for id, p := range d.partners {
		c.partners[id] = copyPartner(p)
	}
	return c
}

func copyOpportunity(o *types.Opportunity) *types.Opportunity {
	cp := *o
	if o.FrequencyId != nil {
		id := *o.FrequencyId
		cp.FrequencyId = &id
	}
	return &cp
}

func copyPartner(p *types.Partner) *types.Partner {
	cp := *p
	cp.Tags = append([]string{}, p.Tags...)
	return &cp
}

func now() time.Time {
	return time.Now().UTC()
}

func (d *memoryData) CreateOpportunity(ctx context.Context, o *types.Opportunity) error {
	for _, existing := range d.opportunities {
		if existing.Name == o.Name {
			return &types.ErrNameConflict{Kind: "opportunity", Name: o.Name}
		}
	}
	if _, ok := d.partners[o.PartnerId]; !ok {
		return &types.ErrPartnerNotFound{Id: o.PartnerId}
	}
	if o.FrequencyId != nil {
		if _, ok := d.frequencies[*o.FrequencyId]; !ok {
			return &types.ErrFrequencyNotFound{Id: *o.FrequencyId}
		}
	}

	o.Id = d.nextOpportunityId
	d.nextOpportunityId++
	o.CreatedAt = now()
	o.UpdatedAt = o.CreatedAt

	d.opportunities[o.Id] = copyOpportunity(o)
	return nil
}

func (d *memoryData) GetOpportunity(ctx context.Context, id uint) (*types.Opportunity, error) {
	o, ok := d.opportunities[id]
	if !ok {
		return nil, &types.ErrOpportunityNotFound{Id: id}
	}
	return copyOpportunity(o), nil
}

func (d *memoryData) GetOpportunityByName(ctx context.Context, name string) (*types.Opportunity, error) {
	for _, o := range d.opportunities {
		if o.Name == name {
			return copyOpportunity(o), nil
		}
	}
	return nil, &types.ErrOpportunityNotFound{Name: name}
}

func (d *memoryData) selectOpportunities(opts types.ListOptions) []*types.Opportunity {
	var selected []*types.Opportunity
	if opts.Ids != nil {
		seen := make(map[uint]bool, len(opts.Ids))
		for _, id := range opts.Ids {
			if o, ok := d.opportunities[id]; ok && !seen[id] {
				seen[id] = true
				selected = append(selected, o)
			}
		}
		return selected
	}

	for _, o := range d.opportunities {
		selected = append(selected, o)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Id < selected[j].Id })
	return selected
}

func (d *memoryData) ListOpportunities(ctx context.Context, opts types.ListOptions) ([]*types.Opportunity, error) {
	selected := d.selectOpportunities(opts)

	start := min(max(opts.Offset, 0), len(selected))
	end := len(selected)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, end)
	}

	opportunities := make([]*types.Opportunity, 0, end-start)
	for _, o := range selected[start:end] {
		opportunities = append(opportunities, copyOpportunity(o))
	}
	return opportunities, nil
}

func (d *memoryData) CountOpportunities(ctx context.Context, opts types.ListOptions) (int, error) {
	return len(d.selectOpportunities(opts)), nil
}

func (d *memoryData) UpdateOpportunity(ctx context.Context, o *types.Opportunity) error {
	existing, ok := d.opportunities[o.Id]
	if !ok {
		return &types.ErrOpportunityNotFound{Id: o.Id}
	}
	for id, other := range d.opportunities {
		if id != o.Id && other.Name == o.Name {
			return &types.ErrNameConflict{Kind: "opportunity", Name: o.Name}
		}
	}
	if _, ok := d.partners[o.PartnerId]; !ok {
		return &types.ErrPartnerNotFound{Id: o.PartnerId}
	}
	if o.FrequencyId != nil {
		if _, ok := d.frequencies[*o.FrequencyId]; !ok {
			return &types.ErrFrequencyNotFound{Id: *o.FrequencyId}
		}
	}

	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = now()
	d.opportunities[o.Id] = copyOpportunity(o)
	return nil
}

func (d *memoryData) DeleteOpportunity(ctx context.Context, id uint) error {
	if _, ok := d.opportunities[id]; !ok {
		return &types.ErrOpportunityNotFound{Id: id}
	}
	delete(d.opportunities, id)
	return nil
}

func (d *memoryData) CreateFrequency(ctx context.Context, name string) (*types.Frequency, error) {
	for _, existing := range d.frequencies {
		if existing.Name == name {
			return nil, &types.ErrNameConflict{Kind: "frequency", Name: name}
		}
	}

	f := &types.Frequency{Id: d.nextFrequencyId, Name: name, CreatedAt: now()}
	f.UpdatedAt = f.CreatedAt
	d.nextFrequencyId++

	d.frequencies[f.Id] = f
	cp := *f
	return &cp, nil
}

func (d *memoryData) GetFrequency(ctx context.Context, id uint) (*types.Frequency, error) {
	f, ok := d.frequencies[id]
	if !ok {
		return nil, &types.ErrFrequencyNotFound{Id: id}
	}
	cp := *f
	return &cp, nil
}

func (d *memoryData) GetFrequencyByName(ctx context.Context, name string) (*types.Frequency, error) {
	for _, f := range d.frequencies {
		if f.Name == name {
			cp := *f
			return &cp, nil
		}
	}
	return nil, &types.ErrFrequencyNotFound{Name: name}
}

func (d *memoryData) ListFrequencies(ctx context.Context) ([]*types.Frequency, error) {
	frequencies := make([]*types.Frequency, 0, len(d.frequencies))
	for _, f := range d.frequencies {
		cp := *f
		frequencies = append(frequencies, &cp)
	}
	sort.Slice(frequencies, func(i, j int) bool { return frequencies[i].Id < frequencies[j].Id })
	return frequencies, nil
}

func (d *memoryData) UpdateFrequency(ctx context.Context, f *types.Frequency) error {
	existing, ok := d.frequencies[f.Id]
	if !ok {
		return &types.ErrFrequencyNotFound{Id: f.Id}
	}
	for id, other := range d.frequencies {
		if id != f.Id && other.Name == f.Name {
			return &types.ErrNameConflict{Kind: "frequency", Name: f.Name}
		}
	}

	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = now()
	cp := *f
	d.frequencies[f.Id] = &cp
	return nil
}

// DeleteFrequency removes the frequency and clears it from opportunities,
// matching ON DELETE SET NULL.
func (d *memoryData) DeleteFrequency(ctx context.Context, id uint) error {
	if _, ok := d.frequencies[id]; !ok {
		return &types.ErrFrequencyNotFound{Id: id}
	}
	delete(d.frequencies, id)

	for _, o := range d.opportunities {
		if o.FrequencyId != nil && *o.FrequencyId == id {
			o.FrequencyId = nil
		}
	}
	return nil
}

func (d *memoryData) GetPartner(ctx context.Context, id uint) (*types.Partner, error) {
	p, ok := d.partners[id]
	if !ok {
		return nil, &types.ErrPartnerNotFound{Id: id}
	}
	return copyPartner(p), nil
}

func (d *memoryData) GetPartnerByName(ctx context.Context, name string) (*types.Partner, error) {
	for _, p := range d.partners {
		if p.Name == name {
			return copyPartner(p), nil
		}
	}
	return nil, &types.ErrPartnerNotFound{Name: name}
}

func (d *memoryData) EnsurePartner(ctx context.Context, name string, tags []string) (*types.Partner, error) {
	var partner *types.Partner
	for _, p := range d.partners {
		if p.Name == name {
			partner = p
			break
		}
	}

	if partner == nil {
		partner = &types.Partner{Id: d.nextPartnerId, Name: name, Tags: []string{}, CreatedAt: now()}
		partner.UpdatedAt = partner.CreatedAt
		d.nextPartnerId++
		d.partners[partner.Id] = partner
	}

	for _, tag := range tags {
		found := false
		for _, t := range partner.Tags {
			if t == tag {
				found = true
				break
			}
		}
		if !found {
			partner.Tags = append(partner.Tags, tag)
		}
	}
	sort.Strings(partner.Tags)

	return copyPartner(partner), nil
}
