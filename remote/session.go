package remote

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dweymouth/asyncstream/deferred"
	"github.com/dweymouth/asyncstream/remote/internal/qjson"
)

// Session is the minimal handle a producer needs to fetch a track: the
// bearer token the catalog API expects on every signed request after
// login.
type Session struct {
	Token string
}

// Handler is notified once a session becomes available or a login
// attempt fails. It should call SessionClient.GetSession to find out
// which.
type Handler interface {
	OnSession()
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func()

// OnSession calls f.
func (f HandlerFunc) OnSession() { f() }

// SessionConfig configures a SessionClient. DeviceManufacturerID is
// generated with uuid.NewString if left blank, matching the reference
// client's requirement for a stable per-install device identifier without
// forcing every caller to mint one.
type SessionConfig struct {
	BaseURL              string
	AppID                string
	AppSecret            string
	DeviceManufacturerID string
	Username, Email      string
	Password             string
	Loop                 deferred.Loop
}

// SessionClient performs a single-flight login: however many callers call
// AddLoginHandler concurrently, at most one login request is ever in
// flight, and every registered handler is notified once it resolves.
// Modeled on the reference catalog client's session/login coordination:
// one mutex, one pending-login flag, a handler list drained under a
// scoped unlock so handler callbacks never run while the mutex is held.
type SessionClient struct {
	client *Client
	cfg    SessionConfig
	loop   deferred.Loop

	mu            sync.Mutex
	handlers      []Handler
	session       *Session
	err           error
	loginInFlight bool
	invoke        *deferred.Handle
}

// NewSessionClient builds a SessionClient. client is reused for signing
// and issuing the login request.
func NewSessionClient(client *Client, cfg SessionConfig) *SessionClient {
	if cfg.DeviceManufacturerID == "" {
		cfg.DeviceManufacturerID = uuid.NewString()
	}
	c := &SessionClient{
		client: client,
		cfg:    cfg,
		loop:   cfg.Loop,
	}
	c.invoke = deferred.New(cfg.Loop, c.invokeHandlers)
	return c
}

// AddLoginHandler registers h to be notified once a session is available
// or a login attempt has failed, kicking off a login request if none is
// already in flight or already satisfied.
func (c *SessionClient) AddLoginHandler(h Handler) {
	c.mu.Lock()
	wasEmpty := len(c.handlers) == 0
	c.handlers = append([]Handler{h}, c.handlers...)

	if !wasEmpty || c.loginInFlight {
		c.mu.Unlock()
		return
	}

	if c.session != nil {
		c.mu.Unlock()
		c.invoke.Schedule()
		return
	}

	c.loginInFlight = true
	c.mu.Unlock()

	c.startLogin()
}

// GetSession returns the current session, or an error: ErrNoSession if no
// login has completed yet, ErrAuth (or whatever the login attempt failed
// with) if the most recent attempt failed.
func (c *SessionClient) GetSession() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return Session{}, c.err
	}
	if c.session == nil {
		return Session{}, ErrNoSession
	}
	return *c.session, nil
}

func (c *SessionClient) startLogin() {
	params := make([]KV, 0, 4)
	if c.cfg.Username != "" {
		params = append(params, KV{Key: "username", Value: c.cfg.Username})
	}
	if c.cfg.Email != "" {
		params = append(params, KV{Key: "email", Value: c.cfg.Email})
	}
	params = append(params, KV{Key: "password", Value: c.cfg.Password})
	params = append(params, KV{Key: "device_manufacturer_id", Value: c.cfg.DeviceManufacturerID})

	url, err := c.client.SignURL("user", "login", params, time.Now())
	if err != nil {
		c.onLoginError(fmt.Errorf("%w: %v", ErrAuth, err))
		return
	}

	go c.runLogin(url)
}

func (c *SessionClient) runLogin(url string) {
	resp, err := c.client.get(url)
	if err != nil {
		c.onLoginError(fmt.Errorf("%w: %v", ErrAuth, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.onLoginError(fmt.Errorf("%w: login request returned %s", ErrAuth, dumpForLog(resp)))
		return
	}

	token, err := qjson.ScanTopLevelString(resp.Body, "user_auth_token")
	if err != nil {
		c.onLoginError(fmt.Errorf("%w: %v", ErrAuth, err))
		return
	}

	c.onLoginSuccess(Session{Token: token})
}

func (c *SessionClient) onLoginSuccess(s Session) {
	c.mu.Lock()
	c.session = &s
	c.err = nil
	c.loginInFlight = false
	c.mu.Unlock()

	c.invoke.Schedule()
}

func (c *SessionClient) onLoginError(err error) {
	c.mu.Lock()
	c.err = err
	c.loginInFlight = false
	c.mu.Unlock()

	c.invoke.Schedule()
}

// invokeHandlers runs on the event loop, draining the handler list under
// a scoped unlock around each callback so a handler is free to call back
// into AddLoginHandler or GetSession without deadlocking.
func (c *SessionClient) invokeHandlers() {
	c.mu.Lock()
	for len(c.handlers) > 0 {
		h := c.handlers[0]
		c.handlers = c.handlers[1:]

		c.mu.Unlock()
		h.OnSession()
		c.mu.Lock()
	}
	c.mu.Unlock()
}
