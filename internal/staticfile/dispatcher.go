package staticfile

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"example.com/staticd/internal/config"
	"example.com/staticd/internal/http1"
	"example.com/staticd/internal/logger"
	"example.com/staticd/internal/transfer"
)

// Resolver turns a request URI into a filesystem path.
type Resolver interface {
	Resolve(requestURI string) (string, error)
}

// Validator decides conditional requests.
type Validator interface {
	IsNotModified(ifModifiedSince string, lastModified time.Time) (bool, error)
}

// Lister renders directory listings.
type Lister interface {
	Render(dir, requestPath string) (string, error)
}

// Transferer writes a file response body.
type Transferer interface {
	Send(c *http1.Conn, f *os.File, length int64, headers http1.Headers, keepAlive bool) transfer.Result
}

// Outcome reports how one request was answered. Status is zero when no
// response was written.
type Outcome struct {
	Status    int
	KeepAlive bool
	Sent      int64 // body bytes
	State     transfer.State
	Err       error
}

type dispatchState int

const (
	stateReceived dispatchState = iota
	stateMethodChecked
	statePathResolved
	stateFileFound
	stateDirFound
	stateNotFound
	stateResponded
)

// Dispatcher answers GET requests for files and directories below a root.
type Dispatcher struct {
	Resolver  Resolver
	Validator Validator
	Lister    Lister
	Headers   *HeaderBuilder
	Transfer  Transferer
	Log       *logger.Logger
	Now       func() time.Time // nil means time.Now
}

// New builds a Dispatcher serving root with the default collaborators.
func New(cfg *config.StaticConfig, root string, lg *logger.Logger) (*Dispatcher, error) {
	if lg == nil {
		return nil, errors.New("logger cannot be nil")
	}
	resolver, err := NewPathResolver(root)
	if err != nil {
		return nil, err
	}
	mimes, err := NewMimeTypeResolver(cfg)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		Resolver:  resolver,
		Validator: CacheValidator{},
		Lister:    ListingRenderer{},
		Headers:   &HeaderBuilder{Mime: mimes},
		Transfer:  transfer.NewEngine(),
		Log:       lg,
	}, nil
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Serve answers req on c. Unless the outcome keeps the connection alive, the
// connection has been closed when Serve returns.
func (d *Dispatcher) Serve(c *http1.Conn, req *http1.Request) Outcome {
	var (
		out    Outcome
		path   string
		target Target
	)

	st := stateReceived
	for st != stateResponded {
		switch st {
		case stateReceived:
			switch {
			case !req.DecodeOK:
				out = d.fail(c, http.StatusBadRequest)
				st = stateResponded
			case req.Method != http.MethodGet:
				out = d.fail(c, http.StatusMethodNotAllowed)
				st = stateResponded
			default:
				st = stateMethodChecked
			}

		case stateMethodChecked:
			p, err := d.Resolver.Resolve(req.URI)
			switch {
			case errors.Is(err, ErrURIDecode):
				d.Log.Warn("StaticFile: request path could not be decoded", logger.LogFields{"uri": req.URI})
				c.Close()
				out = Outcome{Err: err}
				st = stateResponded
			case err != nil:
				out = d.fail(c, http.StatusForbidden)
				st = stateResponded
			default:
				path = p
				st = statePathResolved
			}

		case statePathResolved:
			target = StatTarget(path)
			switch {
			case !target.Exists || target.Hidden:
				st = stateNotFound
			case target.Kind == KindDirectory:
				st = stateDirFound
			case target.Kind == KindFile:
				st = stateFileFound
			default:
				st = stateNotFound
			}

		case stateNotFound:
			out = d.fail(c, http.StatusNotFound)
			st = stateResponded

		case stateDirFound:
			out = d.serveDirectory(c, req, target)
			st = stateResponded

		case stateFileFound:
			out = d.serveFile(c, req, target)
			st = stateResponded
		}
	}
	return out
}

func (d *Dispatcher) serveDirectory(c *http1.Conn, req *http1.Request, target Target) Outcome {
	uriPath, query := splitQuery(req.URI)
	if !strings.HasSuffix(uriPath, "/") {
		return d.simple(c, http.StatusFound, func() (int64, error) {
			return writeRedirect(c, uriPath+"/"+query)
		})
	}

	page, err := d.Lister.Render(target.Path, uriPath)
	if err != nil {
		d.Log.Warn("StaticFile: failed to list directory", logger.LogFields{"path": target.Path, "error": err.Error()})
		return d.fail(c, http.StatusNotFound)
	}
	return d.simple(c, http.StatusOK, func() (int64, error) {
		return writeListing(c, page)
	})
}

func (d *Dispatcher) serveFile(c *http1.Conn, req *http1.Request, target Target) Outcome {
	notModified, err := d.Validator.IsNotModified(req.Header.Get("If-Modified-Since"), target.ModTime)
	if err != nil {
		return d.fail(c, http.StatusBadRequest)
	}
	if notModified {
		return d.simple(c, http.StatusNotModified, func() (int64, error) {
			return writeNotModified(c, d.now())
		})
	}

	f, err := os.Open(target.Path)
	if err != nil {
		return d.fail(c, http.StatusNotFound)
	}
	defer f.Close()

	// The length sent is the length of the file as opened.
	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		return d.fail(c, http.StatusNotFound)
	}
	target.Size = fi.Size()
	target.ModTime = fi.ModTime()

	keepAlive := req.KeepAlive()
	headers := d.Headers.Build(target, keepAlive)
	res := d.Transfer.Send(c, f, target.Size, headers, keepAlive)

	out := Outcome{
		Status:    http.StatusOK,
		KeepAlive: keepAlive && res.State == transfer.Completed,
		Sent:      res.Sent,
		State:     res.State,
		Err:       res.Err,
	}
	if res.State == transfer.Completed {
		d.Log.Debug("StaticFile: transfer complete", logger.LogFields{
			"path":  target.Path,
			"bytes": humanize.IBytes(uint64(res.Sent)),
		})
	} else {
		d.Log.Warn("StaticFile: transfer failed", logger.LogFields{
			"path":  target.Path,
			"sent":  humanize.IBytes(uint64(res.Sent)),
			"total": humanize.IBytes(uint64(res.Total)),
			"error": errString(res.Err),
		})
	}
	return out
}

// simple runs write and closes the connection afterwards.
func (d *Dispatcher) simple(c *http1.Conn, status int, write func() (int64, error)) Outcome {
	n, err := write()
	if err != nil {
		d.Log.Debug("StaticFile: failed to write response", logger.LogFields{"status": status, "error": err.Error()})
	}
	c.Close()
	return Outcome{Status: status, Sent: n, Err: err}
}

func (d *Dispatcher) fail(c *http1.Conn, status int) Outcome {
	return d.simple(c, status, func() (int64, error) {
		return writeFailure(c, status)
	})
}

// splitQuery splits uri at the first '?'; the query keeps its '?'.
func splitQuery(uri string) (path, query string) {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i], uri[i:]
	}
	return uri, ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
