package testutil

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/commands"
	"github.com/mael-queau/roboct0-api/quotes"
	"github.com/mael-queau/roboct0-api/variables"
)

// MemoryStateStore is an in-memory oauth.StateStore.
type MemoryStateStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{tokens: make(map[string]time.Time)}
}

func (m *MemoryStateStore) Save(_ context.Context, value string, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[value]; ok {
		return apperr.New(apperr.Conflict, "state exists")
	}
	m.tokens[value] = createdAt
	return nil
}

func (m *MemoryStateStore) Take(_ context.Context, value string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[value]
	delete(m.tokens, value)
	return t, ok, nil
}

func (m *MemoryStateStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for v, t := range m.tokens {
		if t.Before(cutoff) {
			delete(m.tokens, v)
			n++
		}
	}
	return n, nil
}

// Len returns how many tokens are stored.
func (m *MemoryStateStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

// MemoryAccountStore is an in-memory accounts.Store. Calls counts every
// mutating call so tests can assert nothing was persisted.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[accounts.Provider]map[string]accounts.LinkedAccount
	Writes   int
}

func NewMemoryAccountStore(seed ...accounts.LinkedAccount) *MemoryAccountStore {
	m := &MemoryAccountStore{accounts: make(map[accounts.Provider]map[string]accounts.LinkedAccount)}
	for _, a := range seed {
		m.bucket(a.Provider)[a.ExternalID] = a
	}
	return m
}

func (m *MemoryAccountStore) bucket(p accounts.Provider) map[string]accounts.LinkedAccount {
	b, ok := m.accounts[p]
	if !ok {
		b = make(map[string]accounts.LinkedAccount)
		m.accounts[p] = b
	}
	return b
}

func notFound(p accounts.Provider) error {
	noun := p.Noun()
	return apperr.New(apperr.NotFound, strings.ToUpper(noun[:1])+noun[1:]+" not found.")
}

func (m *MemoryAccountStore) Upsert(_ context.Context, a accounts.LinkedAccount) (accounts.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	b := m.bucket(a.Provider)
	if prev, ok := b[a.ExternalID]; ok {
		prev.Username = a.Username
		prev.AccessToken = a.AccessToken
		prev.RefreshToken = a.RefreshToken
		prev.LastRefresh = a.LastRefresh
		prev.Enabled = true
		b[a.ExternalID] = prev
		return prev, nil
	}
	a.Enabled = true
	b[a.ExternalID] = a
	return a, nil
}

func (m *MemoryAccountStore) Get(_ context.Context, p accounts.Provider, id string) (accounts.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.bucket(p)[id]
	if !ok {
		return accounts.LinkedAccount{}, notFound(p)
	}
	return a, nil
}

func (m *MemoryAccountStore) ListEnabled(_ context.Context, p accounts.Provider) ([]accounts.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []accounts.LinkedAccount
	for _, a := range m.bucket(p) {
		if a.Enabled {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (m *MemoryAccountStore) Search(_ context.Context, p accounts.Provider, f accounts.SearchFilter) ([]accounts.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []accounts.LinkedAccount
	for _, a := range m.bucket(p) {
		if !a.Enabled && !f.IncludeDisabled {
			continue
		}
		if !strings.Contains(strings.ToLower(a.Username), strings.ToLower(f.Query)) {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	return page(all, f.Offset, f.Limit), nil
}

func (m *MemoryAccountStore) UpdateCredentials(_ context.Context, p accounts.Provider, id, access, refresh string, at time.Time) (accounts.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	a, ok := m.bucket(p)[id]
	if !ok {
		return accounts.LinkedAccount{}, notFound(p)
	}
	a.AccessToken, a.RefreshToken, a.LastRefresh = access, refresh, at
	m.bucket(p)[id] = a
	return a, nil
}

func (m *MemoryAccountStore) SetEnabled(_ context.Context, p accounts.Provider, id string, enabled bool) (accounts.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	a, ok := m.bucket(p)[id]
	if !ok {
		return accounts.LinkedAccount{}, notFound(p)
	}
	a.Enabled = enabled
	m.bucket(p)[id] = a
	return a, nil
}

func (m *MemoryAccountStore) Delete(_ context.Context, p accounts.Provider, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	if _, ok := m.bucket(p)[id]; !ok {
		return notFound(p)
	}
	delete(m.bucket(p), id)
	return nil
}

func page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}

// MemoryCommandStore is an in-memory commands.Store.
type MemoryCommandStore struct {
	mu     sync.Mutex
	nextID int64
	cmds   map[string]*commands.Command
}

func NewMemoryCommandStore() *MemoryCommandStore {
	return &MemoryCommandStore{cmds: make(map[string]*commands.Command)}
}

func commandKey(channelID, keyword string) string {
	return channelID + "\x00" + strings.ToLower(keyword)
}

func cloneCommand(c *commands.Command) commands.Command {
	out := *c
	out.Variables = append([]commands.Variable(nil), c.Variables...)
	return out
}

var errCommandNotFound = apperr.New(apperr.NotFound, "Command not found.")

func (m *MemoryCommandStore) Create(_ context.Context, channelID, keyword, content string, names []string) (commands.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := commandKey(channelID, keyword)
	if _, ok := m.cmds[k]; ok {
		return commands.Command{}, apperr.New(apperr.Conflict, "A command with this keyword already exists.")
	}
	m.nextID++
	now := time.Now().UTC()
	c := &commands.Command{ID: m.nextID, ChannelID: channelID, Keyword: keyword, Content: content, Enabled: true, CreatedAt: now, UpdatedAt: now}
	for _, n := range names {
		c.Variables = append(c.Variables, commands.Variable{Name: n})
	}
	m.cmds[k] = c
	return cloneCommand(c), nil
}

func (m *MemoryCommandStore) Get(_ context.Context, channelID, keyword string) (commands.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cmds[commandKey(channelID, keyword)]
	if !ok {
		return commands.Command{}, errCommandNotFound
	}
	return cloneCommand(c), nil
}

func (m *MemoryCommandStore) List(_ context.Context, channelID string, f commands.ListFilter) ([]commands.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []commands.Command
	for _, c := range m.cmds {
		if c.ChannelID != channelID || (!c.Enabled && !f.IncludeDisabled) {
			continue
		}
		all = append(all, cloneCommand(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Keyword < all[j].Keyword })
	return page(all, f.Offset, f.Limit), nil
}

func (m *MemoryCommandStore) Update(_ context.Context, channelID, keyword, content string, names []string) (commands.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cmds[commandKey(channelID, keyword)]
	if !ok {
		return commands.Command{}, errCommandNotFound
	}
	remove, add := variables.Diff(c.VariableNames(), names)
	drop := make(map[string]bool, len(remove))
	for _, n := range remove {
		drop[n] = true
	}
	kept := c.Variables[:0]
	for _, v := range c.Variables {
		if !drop[v.Name] {
			kept = append(kept, v)
		}
	}
	c.Variables = kept
	for _, n := range add {
		c.Variables = append(c.Variables, commands.Variable{Name: n})
	}
	c.Content = content
	c.UpdatedAt = time.Now().UTC()
	return cloneCommand(c), nil
}

func (m *MemoryCommandStore) SetEnabled(_ context.Context, channelID, keyword string, enabled bool) (commands.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cmds[commandKey(channelID, keyword)]
	if !ok {
		return commands.Command{}, errCommandNotFound
	}
	c.Enabled = enabled
	return cloneCommand(c), nil
}

func (m *MemoryCommandStore) Delete(_ context.Context, channelID, keyword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := commandKey(channelID, keyword)
	if _, ok := m.cmds[k]; !ok {
		return errCommandNotFound
	}
	delete(m.cmds, k)
	return nil
}

func (m *MemoryCommandStore) mutateVariable(channelID, keyword, name string, fn func(*commands.Variable)) (commands.Variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cmds[commandKey(channelID, keyword)]
	if !ok {
		return commands.Variable{}, errCommandNotFound
	}
	for i := range c.Variables {
		if c.Variables[i].Name == name {
			fn(&c.Variables[i])
			return c.Variables[i], nil
		}
	}
	return commands.Variable{}, apperr.New(apperr.NotFound, "Variable not found.")
}

func (m *MemoryCommandStore) SetVariable(_ context.Context, channelID, keyword, name string, value int) (commands.Variable, error) {
	return m.mutateVariable(channelID, keyword, name, func(v *commands.Variable) { v.Value = value })
}

func (m *MemoryCommandStore) IncrementVariable(_ context.Context, channelID, keyword, name string, delta int) (commands.Variable, error) {
	return m.mutateVariable(channelID, keyword, name, func(v *commands.Variable) { v.Value += delta })
}

// MemoryQuoteStore is an in-memory quotes.Store.
type MemoryQuoteStore struct {
	mu      sync.Mutex
	counter map[string]int
	quotes  map[string]map[int]quotes.Quote
}

func NewMemoryQuoteStore() *MemoryQuoteStore {
	return &MemoryQuoteStore{counter: map[string]int{}, quotes: map[string]map[int]quotes.Quote{}}
}

var errQuoteNotFound = apperr.New(apperr.NotFound, "Quote not found.")

func (m *MemoryQuoteStore) Create(_ context.Context, channelID, content string, date time.Time) (quotes.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter[channelID]++
	q := quotes.Quote{ChannelID: channelID, Index: m.counter[channelID], Content: content, Date: date, Enabled: true, CreatedAt: time.Now().UTC()}
	if m.quotes[channelID] == nil {
		m.quotes[channelID] = map[int]quotes.Quote{}
	}
	m.quotes[channelID][q.Index] = q
	return q, nil
}

func (m *MemoryQuoteStore) Get(_ context.Context, channelID string, index int) (quotes.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[channelID][index]
	if !ok {
		return quotes.Quote{}, errQuoteNotFound
	}
	return q, nil
}

func (m *MemoryQuoteStore) Search(_ context.Context, channelID string, f quotes.SearchFilter) ([]quotes.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []quotes.Quote
	for _, q := range m.quotes[channelID] {
		if (!q.Enabled && !f.IncludeDisabled) || !strings.Contains(strings.ToLower(q.Content), strings.ToLower(f.Query)) {
			continue
		}
		all = append(all, q)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	return page(all, f.Offset, f.Limit), nil
}

func (m *MemoryQuoteStore) Random(_ context.Context, channelID string) (quotes.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var enabled []quotes.Quote
	for _, q := range m.quotes[channelID] {
		if q.Enabled {
			enabled = append(enabled, q)
		}
	}
	if len(enabled) == 0 {
		return quotes.Quote{}, errQuoteNotFound
	}
	//nolint:gosec // G404: test double
	return enabled[rand.Intn(len(enabled))], nil
}

func (m *MemoryQuoteStore) Update(_ context.Context, channelID string, index int, p quotes.Patch) (quotes.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[channelID][index]
	if !ok {
		return quotes.Quote{}, errQuoteNotFound
	}
	if p.Content != nil {
		q.Content = *p.Content
	}
	if p.Date != nil {
		q.Date = *p.Date
	}
	m.quotes[channelID][index] = q
	return q, nil
}

func (m *MemoryQuoteStore) SetEnabled(_ context.Context, channelID string, index int, enabled bool) (quotes.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[channelID][index]
	if !ok {
		return quotes.Quote{}, errQuoteNotFound
	}
	q.Enabled = enabled
	m.quotes[channelID][index] = q
	return q, nil
}

func (m *MemoryQuoteStore) Delete(_ context.Context, channelID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quotes[channelID][index]; !ok {
		return errQuoteNotFound
	}
	delete(m.quotes[channelID], index)
	return nil
}
