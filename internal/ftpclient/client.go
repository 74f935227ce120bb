package ftpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// DefaultHost and DefaultPort are used when the configuration leaves them unset.
const (
	DefaultHost = "ftp.kiubi-web.com"
	DefaultPort = 21
)

const defaultConnectTimeout = 10 * time.Second

// Config holds the connection parameters for one FTP server. All values are
// passed through to the server unmodified.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	ConnectTimeout time.Duration
}

// Addr returns host:port, falling back to DefaultHost and DefaultPort.
func (c Config) Addr() string {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}

	port := c.Port
	if port == 0 {
		port = DefaultPort
	}

	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Entry is one item of a remote directory listing. Lives for the duration of
// the List call that produced it.
type Entry struct {
	Name    string
	IsDir   bool
	IsFile  bool
	Size    int64
	ModTime time.Time
}

// ProgressInfo reports transfer progress. Bytes counts the current file,
// BytesOverall counts everything since TrackProgress was called.
type ProgressInfo struct {
	Name         string
	Type         string // "upload" or "download"
	Bytes        int64
	BytesOverall int64
}

// ProgressFunc receives progress notifications during uploads and downloads.
type ProgressFunc func(ProgressInfo)

// serverConn is the subset of *ftp.ServerConn used by Conn. Narrowed to an
// interface so tests can substitute a fake server.
type serverConn interface {
	Login(user, password string) error
	List(path string) ([]*ftp.Entry, error)
	Stor(path string, r io.Reader) error
	Retr(path string) (*ftp.Response, error)
	Delete(path string) error
	RemoveDir(path string) error
	MakeDir(path string) error
	ChangeDir(path string) error
	Quit() error
}

// Dialer opens authenticated FTP sessions for one server.
type Dialer struct {
	cfg    Config
	logger *slog.Logger

	// dialFunc is injectable for tests; defaults to dialServer.
	dialFunc func(ctx context.Context, addr string, timeout time.Duration) (serverConn, error)
}

// NewDialer creates a Dialer for the given server configuration.
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	return &Dialer{
		cfg:      cfg,
		logger:   logger,
		dialFunc: dialServer,
	}
}

// Dial connects and logs in. The returned Conn owns the control connection
// until Close is called.
func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	addr := d.cfg.Addr()

	d.logger.Debug("connecting", slog.String("addr", addr), slog.String("user", d.cfg.User))

	sc, err := d.dialFunc(ctx, addr, d.cfg.ConnectTimeout)
	if err != nil {
		return nil, wrapError("dial", addr, err)
	}

	stop := func() bool { return true }
	if intr, ok := sc.(interrupter); ok {
		stop = context.AfterFunc(ctx, intr.Interrupt)
	}

	err = sc.Login(d.cfg.User, d.cfg.Password)
	if !stop() {
		err = &Error{Op: "login", Path: addr, Message: "interrupted", Err: ErrConnectionLost}
	}

	if err != nil {
		if quitErr := sc.Quit(); quitErr != nil {
			d.logger.Debug("quit after failed login", slog.String("error", quitErr.Error()))
		}

		return nil, wrapError("login", addr, err)
	}

	d.logger.Info("connected", slog.String("addr", addr))

	return &Conn{sc: sc, addr: addr, logger: d.logger}, nil
}

// Conn is one logged-in FTP session. Calls are serialized; the FTP control
// connection cannot multiplex commands.
type Conn struct {
	mu     gosync.Mutex
	sc     serverConn
	addr   string
	logger *slog.Logger

	progressMu   gosync.Mutex
	progress     ProgressFunc
	bytesOverall int64
}

// List returns the entries of a remote directory, without "." and "..".
func (c *Conn) List(ctx context.Context, remotePath string) ([]Entry, error) {
	var raw []*ftp.Entry

	err := c.guard(ctx, "list", remotePath, func() error {
		var err error
		raw, err = c.sc.List(remotePath)

		return err
	})
	if err != nil {
		return nil, err
	}

	return convertEntries(raw), nil
}

// Upload stores r at remotePath, overwriting any existing file.
func (c *Conn) Upload(ctx context.Context, remotePath string, r io.Reader) error {
	pr := &progressReader{r: r, conn: c, name: remotePath}

	return c.guard(ctx, "stor", remotePath, func() error {
		return c.sc.Stor(remotePath, pr)
	})
}

// Download streams remotePath into w.
func (c *Conn) Download(ctx context.Context, remotePath string, w io.Writer) error {
	return c.guard(ctx, "retr", remotePath, func() error {
		resp, err := c.sc.Retr(remotePath)
		if err != nil {
			return err
		}

		pw := &progressWriter{w: w, conn: c, name: remotePath}
		_, copyErr := io.Copy(pw, resp)

		// Close reads the final reply of the transfer and must always run.
		closeErr := resp.Close()
		if copyErr != nil {
			return copyErr
		}

		return closeErr
	})
}

// RemoveFile deletes a remote file. A missing file yields ErrNotFound.
func (c *Conn) RemoveFile(ctx context.Context, remotePath string) error {
	return c.guard(ctx, "dele", remotePath, func() error {
		return c.sc.Delete(remotePath)
	})
}

// RemoveDir deletes an empty remote directory. A missing directory yields ErrNotFound.
func (c *Conn) RemoveDir(ctx context.Context, remotePath string) error {
	return c.guard(ctx, "rmd", remotePath, func() error {
		return c.sc.RemoveDir(remotePath)
	})
}

// EnsureDir creates every missing directory of remotePath and leaves the
// working directory at remotePath.
func (c *Conn) EnsureDir(ctx context.Context, remotePath string) error {
	return c.guard(ctx, "mkd", remotePath, func() error {
		cur := "/"
		for _, seg := range splitRemotePath(remotePath) {
			cur = path.Join(cur, seg)

			if err := c.sc.ChangeDir(cur); err == nil {
				continue
			}

			if err := c.sc.MakeDir(cur); err != nil {
				return wrapError("mkd", cur, err)
			}

			if err := c.sc.ChangeDir(cur); err != nil {
				return wrapError("cwd", cur, err)
			}
		}

		if cur == "/" {
			return wrapError("cwd", cur, c.sc.ChangeDir(cur))
		}

		return nil
	})
}

// ChangeDir changes the remote working directory.
func (c *Conn) ChangeDir(ctx context.Context, remotePath string) error {
	return c.guard(ctx, "cwd", remotePath, func() error {
		return c.sc.ChangeDir(remotePath)
	})
}

// TrackProgress installs fn as the progress observer and resets the overall
// byte counter. A nil fn stops tracking.
func (c *Conn) TrackProgress(fn ProgressFunc) {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()

	c.progress = fn
	c.bytesOverall = 0
}

// Close sends QUIT and releases the control connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("closing connection", slog.String("addr", c.addr))

	if err := c.sc.Quit(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("ftp: quit %s: %w", c.addr, err)
	}

	return nil
}

// report adds n bytes to the counters and notifies the progress observer.
func (c *Conn) report(name, kind string, current int64, n int) {
	c.progressMu.Lock()
	c.bytesOverall += int64(n)
	fn := c.progress
	info := ProgressInfo{Name: name, Type: kind, Bytes: current, BytesOverall: c.bytesOverall}
	c.progressMu.Unlock()

	if fn != nil {
		fn(info)
	}
}

type progressReader struct {
	r    io.Reader
	conn *Conn
	name string
	n    int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)
		p.conn.report(p.name, "upload", p.n, n)
	}

	return n, err
}

type progressWriter struct {
	w    io.Writer
	conn *Conn
	name string
	n    int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.n += int64(n)
		p.conn.report(p.name, "download", p.n, n)
	}

	return n, err
}

// convertEntries maps library entries to Entry values, dropping the "." and
// ".." pseudo-entries some servers include.
func convertEntries(raw []*ftp.Entry) []Entry {
	entries := make([]Entry, 0, len(raw))

	for _, e := range raw {
		if e == nil || e.Name == "." || e.Name == ".." {
			continue
		}

		entries = append(entries, Entry{
			Name:    e.Name,
			IsDir:   e.Type == ftp.EntryTypeFolder,
			IsFile:  e.Type == ftp.EntryTypeFile,
			Size:    int64(e.Size), //nolint:gosec // file sizes fit in int64
			ModTime: e.Time,
		})
	}

	return entries
}

// splitRemotePath returns the non-empty segments of a slash-separated path.
func splitRemotePath(p string) []string {
	var segs []string

	for _, s := range strings.Split(path.Clean("/"+p), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}

	return segs
}
