package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	inkling "github.com/Paranoid-AF/inkling"
	defaults "github.com/Paranoid-AF/inkling/default"
	"github.com/Paranoid-AF/inkling/document"
	"github.com/Paranoid-AF/inkling/generate"
	"github.com/Paranoid-AF/inkling/session"
	"github.com/Paranoid-AF/inkling/suggest"
)

// modelsTimeout bounds a models listing.
const modelsTimeout = 10 * time.Second

// Server listens on a Unix domain socket and hosts editor views. Each
// connection owns its views; they are closed when it disconnects.
type Server struct {
	listener   net.Listener
	sockPath   string
	codec      string
	engine     *suggest.Engine
	configPath string
	indexCache string

	mu      sync.Mutex
	clients map[*client]struct{}
	watcher *fsnotify.Watcher
	closed  bool
	wg      sync.WaitGroup
}

// NewServer loads the configuration, builds the engine and binds sockPath.
// A broken config file is reported and replaced by the defaults.
func NewServer(sockPath, codecName string) (*Server, error) {
	cfg, err := inkling.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = inkling.DefaultConfig()
	}
	for _, w := range inkling.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	engine := suggest.NewEngine(cfg)
	srv, err := NewServerWithEngine(sockPath, codecName, engine)
	if err != nil {
		engine.Close()
		return nil, err
	}
	srv.configPath = inkling.ConfigPath()
	srv.indexCache = inkling.IndexCachePath()
	srv.loadIndexCache()
	if err := srv.watchConfig(); err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	}
	return srv, nil
}

// NewServerWithEngine binds sockPath and serves views from engine.
func NewServerWithEngine(sockPath, codecName string, engine *suggest.Engine) (*Server, error) {
	if err := checkCodec(codecName); err != nil {
		return nil, err
	}

	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		sockPath: sockPath,
		codec:    codecName,
		engine:   engine,
		clients:  make(map[*client]struct{}),
	}, nil
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		c, err := s.newClient(conn)
		if err != nil {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve()
		}()
	}
}

// Close disconnects every client, saves the index cache, shuts the engine
// down and removes the socket file.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	watcher := s.watcher
	s.mu.Unlock()

	s.listener.Close()
	if watcher != nil {
		watcher.Close()
	}
	for _, c := range clients {
		c.conn.Close()
	}
	s.wg.Wait()

	s.saveIndexCache()
	s.engine.Close()
	os.Remove(s.sockPath)
}

func (s *Server) newClient(conn net.Conn) (*client, error) {
	cd, err := newCodec(s.codec, conn)
	if err != nil {
		return nil, err
	}
	c := &client{srv: s, conn: conn, codec: cd, views: make(map[string]*hostedView)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, net.ErrClosed
	}
	s.clients[c] = struct{}{}
	return c, nil
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// reload re-reads the config file and swaps it into the engine.
func (s *Server) reload() (*inkling.Config, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	for _, w := range inkling.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	s.engine.Reload(cfg)
	return cfg, nil
}

func (s *Server) loadConfig() (*inkling.Config, error) {
	if s.configPath == "" {
		return inkling.LoadConfig()
	}
	return inkling.LoadConfigFile(s.configPath)
}

// watchConfig reloads the engine whenever the config file or the custom
// prompt changes. The directory is watched so editors that replace the file
// on save are seen too.
func (s *Server) watchConfig() error {
	dir := filepath.Dir(s.configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	watched := map[string]bool{
		filepath.Base(s.configPath):         true,
		filepath.Base(inkling.PromptPath()): true,
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watched[filepath.Base(event.Name)] {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				slog.Info("config changed, reloading", "file", event.Name)
				if _, err := s.reload(); err != nil {
					slog.Warn("config reload failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (s *Server) loadIndexCache() {
	idx := s.engine.Indexer()
	if !idx.Enabled() || s.indexCache == "" {
		return
	}
	if err := idx.LoadCache(s.indexCache); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load index cache", "path", s.indexCache, "error", err)
	}
}

func (s *Server) saveIndexCache() {
	idx := s.engine.Indexer()
	if !idx.Enabled() || s.indexCache == "" || idx.Len() == 0 {
		return
	}
	if err := idx.SaveCache(s.indexCache); err != nil {
		slog.Warn("failed to save index cache", "path", s.indexCache, "error", err)
	}
}

// hostedView is a daemon-side view with its mirror of the editor buffer.
type hostedView struct {
	view *suggest.View
	buf  *document.Buffer
}

// client is one editor connection. Events are handled in order on the
// connection goroutine.
type client struct {
	srv   *Server
	conn  net.Conn
	codec codec
	views map[string]*hostedView
}

func (c *client) serve() {
	defer c.srv.removeClient(c)
	defer c.conn.Close()
	defer c.closeViews()

	for {
		var ev inkling.Event
		err := c.codec.Decode(&ev)
		if err != nil {
			var de *decodeError
			if errors.As(err, &de) {
				slog.Warn("invalid event", "error", err)
				c.send(inkling.NewError("", inkling.ErrCodeBadRequest, err.Error()))
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Debug("connection closed", "error", err)
			}
			return
		}
		slog.Debug("event", "type", ev.Type, "view", ev.ViewID)
		c.handle(&ev)
	}
}

func (c *client) send(msg *inkling.Message) {
	if err := c.codec.Encode(msg); err != nil {
		slog.Debug("failed to send message", "type", msg.Type, "error", err)
	}
}

func (c *client) closeViews() {
	for id, hv := range c.views {
		hv.view.Close()
		delete(c.views, id)
	}
}

func (c *client) handle(ev *inkling.Event) {
	switch ev.Type {
	case inkling.EventOpen:
		c.open(ev)
	case inkling.EventConfig:
		c.send(c.config(ev.Action))
	case inkling.EventModels:
		c.send(c.models())
	case inkling.EventChange, inkling.EventCursor, inkling.EventAccept,
		inkling.EventTrigger, inkling.EventCancel, inkling.EventClose:
		hv, ok := c.views[ev.ViewID]
		if !ok {
			c.send(inkling.NewError(ev.ViewID, inkling.ErrCodeUnknownView, "unknown view: "+ev.ViewID))
			return
		}
		c.handleView(ev, hv)
	default:
		c.send(inkling.NewError(ev.ViewID, inkling.ErrCodeBadRequest, "unknown event type: "+ev.Type))
	}
}

func (c *client) open(ev *inkling.Event) {
	id := ev.ViewID
	if id == "" {
		id = uuid.NewString()
	}
	if old, ok := c.views[id]; ok {
		old.view.Close()
	}

	text := ""
	if ev.Text != nil {
		text = *ev.Text
	}
	buf := document.NewBuffer(text)
	buf.MoveCursor(ev.Cursor)

	view := c.srv.engine.NewView(id, buf, ev.Path, &viewRenderer{client: c, id: id})
	c.views[id] = &hostedView{view: view, buf: buf}
	slog.Debug("view opened", "view", id, "path", ev.Path, "len", len(text))
	c.send(&inkling.Message{Type: inkling.MessageOpened, ViewID: id})
}

func (c *client) handleView(ev *inkling.Event, hv *hostedView) {
	switch ev.Type {
	case inkling.EventChange:
		var tx session.Transaction
		switch {
		case len(ev.Edits) > 0:
			var err error
			tx, err = hv.buf.Apply(ev.Edits, ev.Cursor)
			if err != nil {
				c.send(inkling.NewError(ev.ViewID, inkling.ErrCodeBadRequest, err.Error()))
				return
			}
		case ev.Text != nil:
			tx = hv.buf.Replace(*ev.Text, ev.Cursor)
		default:
			tx = hv.buf.MoveCursor(ev.Cursor)
		}
		hv.view.Dispatch(tx)

	case inkling.EventCursor:
		hv.view.Dispatch(hv.buf.MoveCursor(ev.Cursor))

	case inkling.EventAccept:
		handled := hv.view.Accept(ev.Key)
		c.send(&inkling.Message{Type: inkling.MessageAccept, ViewID: ev.ViewID, Handled: handled})

	case inkling.EventTrigger:
		hv.view.Trigger()

	case inkling.EventCancel:
		hv.view.Cancel()

	case inkling.EventClose:
		hv.view.Close()
		delete(c.views, ev.ViewID)
	}
}

func (c *client) config(action string) *inkling.Message {
	resp := &inkling.Message{Type: inkling.MessageConfig}

	switch action {
	case "get":
		cfg, err := c.srv.loadConfig()
		if err != nil {
			return inkling.NewError("", inkling.ErrCodeConfig, err.Error())
		}
		resp.Config = cfg

	case "reload":
		cfg, err := c.srv.reload()
		if err != nil {
			return inkling.NewError("", inkling.ErrCodeConfig, err.Error())
		}
		resp.Config = cfg

	case "defaults":
		resp.Config = inkling.DefaultConfig()

	case "default_prompt":
		resp.Prompt = defaults.DefaultPrompt

	case "validate":
		cfg, err := c.srv.loadConfig()
		if err != nil {
			return inkling.NewError("", inkling.ErrCodeConfig, err.Error())
		}
		resp.Warnings = inkling.ValidateConfig(cfg)

	default:
		return inkling.NewError("", inkling.ErrCodeBadRequest, "unknown config action: "+action)
	}
	return resp
}

func (c *client) models() *inkling.Message {
	ctx, cancel := context.WithTimeout(context.Background(), modelsTimeout)
	defer cancel()

	models, err := c.srv.engine.ListModels(ctx)
	if err != nil {
		code := inkling.ErrCodeAPI
		if errors.Is(err, generate.ErrNotConfigured) || errors.Is(err, generate.ErrUnknownProvider) {
			code = inkling.ErrCodeNotConfigured
		}
		return inkling.NewError("", code, err.Error())
	}
	return &inkling.Message{Type: inkling.MessageModels, Models: models}
}

// viewRenderer forwards a view's ghost text and accept insertions to the
// editor.
type viewRenderer struct {
	client *client
	id     string
}

func (r *viewRenderer) Render(st suggest.State) {
	msg := &inkling.Message{Type: inkling.MessageSuggestion, ViewID: r.id}
	if st.Visible {
		remaining := st.Remaining
		msg.Remaining = &remaining
		msg.Anchor = st.Anchor
	}
	r.client.send(msg)
}

func (r *viewRenderer) Inserted(tx session.Transaction) {
	for i := range tx.Edits {
		edit := tx.Edits[i]
		r.client.send(&inkling.Message{Type: inkling.MessageInsert, ViewID: r.id, Insert: &edit})
	}
}
