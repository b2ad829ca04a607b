package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tunivo/jobsync/app/backend"
	"github.com/tunivo/jobsync/app/notify"
	"github.com/tunivo/jobsync/app/session"
	"github.com/tunivo/jobsync/app/store"
	"github.com/tunivo/jobsync/app/tracker"
)

type options struct {
	Dbg bool `long:"dbg" env:"JOBSYNC_DEBUG" description:"debug mode"`

	Store struct {
		Type     string `long:"type" env:"TYPE" choice:"file" choice:"sqlite" choice:"memory" default:"file" description:"local store type"`
		Location string `long:"location" env:"LOCATION" description:"store directory, user config dir if not set"`
	} `group:"store" namespace:"store" env-namespace:"JOBSYNC_STORE"`

	API struct {
		Origin     string        `long:"origin" env:"ORIGIN" default:"https://tuniv-backend-production.up.railway.app" description:"api origin"`
		Timeout    time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"api request timeout"`
		Retries    int           `long:"retries" env:"RETRIES" default:"1" description:"attempts per status fetch on network errors"`
		RetryDelay time.Duration `long:"retry-delay" env:"RETRY_DELAY" default:"250ms" description:"delay between fetch attempts"`
	} `group:"api" namespace:"api" env-namespace:"JOBSYNC_API"`

	Poll struct {
		Interval   time.Duration `long:"interval" env:"INTERVAL" default:"1500ms" description:"status polling interval"`
		MaxFetches int           `long:"max-fetches" env:"MAX_FETCHES" default:"8" description:"max concurrent status fetches"`
	} `group:"poll" namespace:"poll" env-namespace:"JOBSYNC_POLL"`

	Notify struct {
		URLs              []string      `long:"url" env:"URL" env-delim:"," description:"webhook url(s)"`
		Headers           []string      `long:"header" env:"HEADER" env-delim:"," description:"webhook header(s), Name:Value"`
		Timeout           time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"webhook timeout"`
		EnabledCompletion bool          `long:"enabled-complete" env:"ENABLED_COMPLETE" description:"notify on completed jobs"`
		EnabledError      bool          `long:"enabled-error" env:"ENABLED_ERROR" description:"notify on failed jobs"`
	} `group:"notify" namespace:"notify" env-namespace:"JOBSYNC_NOTIFY"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"jobsync.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size in MB"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max age of rotated files in days"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"JOBSYNC_LOG"`

	Login  loginCmd  `command:"login" description:"log in with email"`
	Logout logoutCmd `command:"logout" description:"forget current identity"`
	Create createCmd `command:"create" description:"submit new generation job"`
	List   listCmd   `command:"list" description:"list local projects"`
	Show   showCmd   `command:"show" description:"show project details"`
	Watch  watchCmd  `command:"watch" description:"poll project status until completed or failed"`
	Delete deleteCmd `command:"delete" description:"delete project locally"`
	Serve  serveCmd  `command:"serve" description:"run local read-model api server"`
}

var opts options

var revision = "unknown"

// appCtx is canceled on SIGTERM or SIGINT
var appCtx = context.Background()

func main() {
	fmt.Fprintf(os.Stderr, "jobsync %s\n", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	appCtx = ctx
	signals(cancel)

	p := flags.NewParser(&opts, flags.Default)
	p.CommandHandler = func(cmd flags.Commander, args []string) error {
		setupLogs()
		return cmd.Execute(args)
	}

	if _, err := p.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// application holds wired components for a command run
type application struct {
	kv      store.KV
	client  *backend.Client
	session *session.Session
	tracker *tracker.Tracker
}

func makeApp() (*application, error) {
	kv, err := makeKV()
	if err != nil {
		return nil, err
	}

	client := backend.New(backend.Params{Origin: opts.API.Origin, Timeout: opts.API.Timeout, Repeater: makeRepeater()})
	sess := session.New(kv, client)
	params := tracker.Params{
		Backend:              client,
		Identity:             sess,
		Store:                store.NewProjects(kv),
		PollInterval:         opts.Poll.Interval,
		MaxConcurrentFetches: opts.Poll.MaxFetches,
	}
	if wh := makeNotifier(); wh != nil {
		params.Notifier = wh
	}
	log.Printf("[DEBUG] store %v, api %s", kv, client)
	return &application{kv: kv, client: client, session: sess, tracker: tracker.New(params)}, nil
}

// Close stops polling and closes the store
func (a *application) Close() {
	a.tracker.Close()
	if c, ok := a.kv.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("[WARN] can't close store, %v", err)
		}
	}
}

func withApp(fn func(a *application) error) error {
	a, err := makeApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func makeKV() (store.KV, error) {
	location := opts.Store.Location
	if location == "" && opts.Store.Type != "memory" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("can't detect config dir, set --store.location: %w", err)
		}
		location = filepath.Join(dir, "jobsync")
	}

	switch opts.Store.Type {
	case "memory":
		return store.NewMemoryKV(), nil
	case "sqlite":
		if err := os.MkdirAll(location, 0o700); err != nil {
			return nil, fmt.Errorf("can't make store directory %s: %w", location, err)
		}
		return store.NewSQLiteKV(filepath.Join(location, "jobsync.db"))
	case "file", "":
		return store.NewFileKV(location)
	default:
		return nil, fmt.Errorf("unknown store type %q", opts.Store.Type)
	}
}

func makeRepeater() backend.Repeater {
	if opts.API.Retries <= 1 {
		return repeater.New(&strategy.Once{})
	}
	return repeater.New(&strategy.FixedDelay{Repeats: opts.API.Retries, Delay: opts.API.RetryDelay})
}

func makeNotifier() *notify.Webhook {
	if !opts.Notify.EnabledError && !opts.Notify.EnabledCompletion {
		return nil
	}
	return notify.NewWebhook(notify.Params{
		URLs:         opts.Notify.URLs,
		Headers:      opts.Notify.Headers,
		Timeout:      opts.Notify.Timeout,
		OnCompletion: opts.Notify.EnabledCompletion,
		OnError:      opts.Notify.EnabledError,
	})
}

// setupLogs configures lgr and returns its output, rotated file if enabled or stderr
func setupLogs() io.Writer {
	var out io.Writer = os.Stderr
	if opts.Log.Enabled {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	if opts.Dbg {
		log.Setup(log.Out(out), log.Err(out), log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile)
		return out
	}
	log.Setup(log.Out(out), log.Err(out), log.Msec)
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGTERM or SIGINT
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}
