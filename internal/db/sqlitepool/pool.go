// Package sqlitepool keeps read-only connection pools to many SQLite
// databases, one pool per database file.
package sqlitepool

import (
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

const (
	// DefaultMaxDatabases is the number of databases kept open when New is given no limit.
	DefaultMaxDatabases = 10
	// MaxIdleTime is how long an unused connection inside one database pool is kept.
	MaxIdleTime = 10 * time.Minute
	// MaxLifeTime caps the age of a single connection, and is also how long an
	// unused database stays open before it is closed.
	MaxLifeTime         = time.Hour
	maxConnsPerDatabase = 10
)

type entry struct {
	db       *sql.DB
	refs     int
	lastUsed time.Time
	evicted  bool
}

// Pool caches one *sql.DB per database path. Databases are opened read-only.
// Once more than the configured number are open the least recently used one
// is dropped, and a database unused for MaxLifeTime is dropped as well. A
// dropped database is closed when its last WithConnection call returns.
type Pool struct {
	mu    sync.Mutex
	pools *lru.Cache[string, *entry]
	now   func() time.Time
}

// New creates a pool holding at most maxDatabases open databases.
func New(maxDatabases int) *Pool {
	if maxDatabases <= 0 {
		maxDatabases = DefaultMaxDatabases
	}
	pools, err := lru.NewWithEvict(maxDatabases, func(_ string, e *entry) {
		e.evicted = true
		if e.refs == 0 {
			_ = e.db.Close()
		}
	})
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &Pool{pools: pools, now: time.Now}
}

// WithConnection runs fn against the database at path. The database stays
// open until fn returns even if it is evicted meanwhile.
func (p *Pool) WithConnection(path string, fn func(*sql.DB) error) error {
	e, err := p.acquire(path)
	if err != nil {
		return err
	}
	defer p.release(e)
	return fn(e.db)
}

func (p *Pool) acquire(path string) (*entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.dropIdle()
	if e, ok := p.pools.Get(abs); ok {
		e.refs++
		return e, nil
	}
	db, err := sql.Open("sqlite", readOnlyDSN(abs))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", abs, err)
	}
	db.SetMaxOpenConns(maxConnsPerDatabase)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(MaxIdleTime)
	db.SetConnMaxLifetime(MaxLifeTime)
	e := &entry{db: db, refs: 1, lastUsed: p.now()}
	p.pools.Add(abs, e)
	return e, nil
}

func (p *Pool) release(e *entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e.refs--
	e.lastUsed = p.now()
	if e.evicted && e.refs == 0 {
		_ = e.db.Close()
	}
}

// dropIdle removes databases nobody has used for MaxLifeTime. Callers hold p.mu.
func (p *Pool) dropIdle() {
	now := p.now()
	for _, key := range p.pools.Keys() {
		e, ok := p.pools.Peek(key)
		if ok && e.refs == 0 && now.Sub(e.lastUsed) >= MaxLifeTime {
			p.pools.Remove(key)
		}
	}
}

// Len returns the number of open databases.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pools.Len()
}

// Close drops every database. Databases still in use are closed once released.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools.Purge()
}

func readOnlyDSN(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path), RawQuery: "mode=ro"}
	return u.String()
}
