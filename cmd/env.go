package main

import (
	"context"
	"net/http"
	"time"

	"github.com/sells-group/nightline/internal/caller"
	"github.com/sells-group/nightline/internal/classify"
	"github.com/sells-group/nightline/internal/config"
	"github.com/sells-group/nightline/internal/store"
	"github.com/sells-group/nightline/pkg/vapi"
)

// initStore opens the configured backend and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// initDialer builds the call dialer: the mock when asked, otherwise the
// configured Vapi client.
func initDialer(mock bool) caller.Dialer {
	if mock {
		return caller.MockDialer{}
	}
	client := vapi.NewClient(cfg.Vapi.Key,
		vapi.WithBaseURL(cfg.Vapi.BaseURL),
		vapi.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Vapi.RequestSecs) * time.Second}),
	)
	d := caller.NewVapiDialer(
		client,
		cfg.Vapi.PhoneID,
		time.Duration(cfg.Vapi.PollSecs)*time.Second,
		time.Duration(cfg.Vapi.CallCapSecs)*time.Second,
	)
	if cfg.Vapi.AssistantID != "" {
		d = d.WithAssistant(cfg.Vapi.AssistantID)
	}
	return d
}

// initEngine assembles the call engine over an open store.
func initEngine(st store.Store, mock bool) *caller.Engine {
	return caller.New(
		st,
		initDialer(mock),
		classify.New(classify.Priority(cfg.Classify.Priority)),
		time.Duration(cfg.Call.DelaySecs)*time.Second,
		time.Duration(cfg.Call.CooldownHrs)*time.Hour,
	)
}

func loadIndustries() (config.IndustryRegistry, error) {
	return config.LoadIndustries(cfg.IndustriesFile)
}
