package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"slices"

	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/storage"
)

// Query parameters the identity server appends when it sends the browser
// back to the client.
const (
	paramCode     = "code"
	paramState    = "state"
	paramProvider = "provider"
	paramError    = "error"

	errAccessDenied = "access_denied"
)

// maxConsumedCallbacks bounds how many consumed callbacks are remembered
// across loads.
const maxConsumedCallbacks = 32

type callback struct {
	provider domain.AuthProvider
	code     string
	state    string
	errCode  string
}

func parseCallback(u *url.URL) (callback, bool) {
	if u == nil {
		return callback{}, false
	}
	q := u.Query()
	cb := callback{
		code:    q.Get(paramCode),
		state:   q.Get(paramState),
		errCode: q.Get(paramError),
	}
	if cb.code == "" && cb.errCode == "" {
		return callback{}, false
	}
	cb.provider, _ = domain.ParseAuthProvider(q.Get(paramProvider))
	return cb, true
}

func (c callback) denied() bool { return c.errCode == errAccessDenied }

// key identifies a callback for replay detection.
func (c callback) key() string {
	if c.code != "" {
		return "code:" + c.code
	}
	return "error:" + c.errCode + ":" + c.state
}

// reserve marks key consumed. It reports false if it already was, either in
// this process or in a previous load that persisted it.
func (a *Actions) reserve(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.consumed[key]; ok {
		return false
	}
	keys := a.loadConsumed()
	if slices.Contains(keys, key) {
		a.consumed[key] = struct{}{}
		return false
	}

	a.consumed[key] = struct{}{}
	keys = append(keys, key)
	if len(keys) > maxConsumedCallbacks {
		keys = keys[len(keys)-maxConsumedCallbacks:]
	}
	a.saveConsumed(keys)
	return true
}

// release undoes a reservation for a callback that was never processed.
func (a *Actions) release(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.consumed, key)
	keys := a.loadConsumed()
	if i := slices.Index(keys, key); i >= 0 {
		a.saveConsumed(slices.Delete(keys, i, i+1))
	}
}

// loadConsumed reads the persisted consumed keys, oldest first. A value
// that is not a JSON list is treated as a single key.
func (a *Actions) loadConsumed() []string {
	raw, err := a.storage.Get(KeyOAuthConsumed)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.Warn("read consumed callbacks", slog.Any("error", err))
		}
		return nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return []string{raw}
	}
	return keys
}

func (a *Actions) saveConsumed(keys []string) {
	if len(keys) == 0 {
		if err := a.storage.Delete(KeyOAuthConsumed); err != nil {
			a.logger.Warn("clear consumed callbacks", slog.Any("error", err))
		}
		return
	}
	data, err := json.Marshal(keys)
	if err != nil {
		a.logger.Warn("encode consumed callbacks", slog.Any("error", err))
		return
	}
	if err := a.storage.Set(KeyOAuthConsumed, string(data)); err != nil {
		a.logger.Warn("persist consumed callbacks", slog.Any("error", err))
	}
}

// stripCallback removes callback parameters from the address so a reload
// does not present them again.
func (a *Actions) stripCallback() {
	cur := a.location.Current()
	if cur == nil {
		return
	}
	u := *cur
	q := u.Query()
	for _, p := range []string{paramCode, paramState, paramProvider, paramError} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	a.location.Replace(&u)
}
