// Command asyncstream-demo drives the stream core end to end against a
// real HTTP endpoint: it logs in through remote.SessionClient, resolves a
// track to a media URL with remote.TrackRequest, and pumps the result
// through stream.Stream backed by a remote.HTTPProducer, printing
// progress to stderr as it reads. It exists to exercise the whole
// pipeline the way a player's startup path would, without needing a real
// UI or audio backend.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dweymouth/asyncstream/deferred"
	"github.com/dweymouth/asyncstream/remote"
	"github.com/dweymouth/asyncstream/stream"
)

// config is the on-disk shape of the demo's TOML configuration file.
type config struct {
	BaseURL   string `toml:"base_url"`
	AppID     string `toml:"app_id"`
	AppSecret string `toml:"app_secret"`
	Username  string `toml:"username"`
	Email     string `toml:"email"`
	Password  string `toml:"password"`

	TrackID    string `toml:"track_id"`
	FormatID   int    `toml:"format_id"`
	BufferSize int    `toml:"buffer_size"`
	ResumeAt   int    `toml:"resume_at"`
}

func loadConfig(path string) (config, error) {
	f, err := os.Open(path)
	if err != nil {
		return config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg config
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1 << 20
	}
	if cfg.FormatID == 0 {
		cfg.FormatID = 5
	}
	if cfg.ResumeAt == 0 {
		cfg.ResumeAt = cfg.BufferSize / 4
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "asyncstream-demo.toml", "path to TOML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("asyncstream-demo: %v", err)
	}

	logger := log.New(os.Stderr, "asyncstream-demo: ", log.LstdFlags)

	loop := deferred.NewEventLoop(64)
	defer loop.Stop()

	client := remote.NewClient(cfg.BaseURL, cfg.AppID, cfg.AppSecret)
	sessions := remote.NewSessionClient(client, remote.SessionConfig{
		BaseURL:   cfg.BaseURL,
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		Username:  cfg.Username,
		Email:     cfg.Email,
		Password:  cfg.Password,
		Loop:      loop,
	})

	mediaURL := make(chan string, 1)
	loginErr := make(chan error, 1)

	sessions.AddLoginHandler(remote.HandlerFunc(func() {
		session, err := sessions.GetSession()
		if err != nil {
			loginErr <- err
			return
		}

		req, err := remote.NewTrackRequest(client, session, cfg.TrackID, cfg.FormatID,
			trackHandlerFuncs{
				onSuccess: func(url string) { mediaURL <- url },
				onError:   func(err error) { loginErr <- err },
			})
		if err != nil {
			loginErr <- err
			return
		}
		req.Start()
	}))

	var url string
	select {
	case url = <-mediaURL:
	case err := <-loginErr:
		log.Fatalf("asyncstream-demo: resolving track: %v", err)
	case <-time.After(30 * time.Second):
		log.Fatal("asyncstream-demo: timed out resolving track")
	}

	producer := remote.NewHTTPProducer(loop, client.HTTP, url, logger)
	s := stream.New(stream.Config{
		URL:        url,
		BufferSize: cfg.BufferSize,
		ResumeAt:   cfg.ResumeAt,
		Seekable:   true,
		Producer:   producer,
		Loop:       loop,
		Logger:     logger,
	})
	producer.Bind(s)

	s.L.Lock()
	if err := producer.DoResume(); err != nil {
		s.L.Unlock()
		log.Fatalf("asyncstream-demo: starting transfer: %v", err)
	}
	s.L.Unlock()

	buf := make([]byte, 64*1024)
	var total int64
	for {
		s.L.Lock()
		n, err := s.Read(buf)
		s.L.Unlock()
		if err != nil {
			log.Fatalf("asyncstream-demo: read: %v", err)
		}
		if n == 0 {
			break
		}
		total += int64(n)
		fmt.Fprintf(os.Stderr, "\rread %d bytes", total)
	}
	fmt.Fprintf(os.Stderr, "\ndone: %d bytes total\n", total)
}

// trackHandlerFuncs adapts two plain functions to remote.TrackHandler.
type trackHandlerFuncs struct {
	onSuccess func(url string)
	onError   func(err error)
}

func (f trackHandlerFuncs) OnTrackSuccess(url string) { f.onSuccess(url) }
func (f trackHandlerFuncs) OnTrackError(err error)    { f.onError(err) }
