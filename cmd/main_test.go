package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/loyalty/internal/api"
	"github.com/kkkkikiki/loyalty/internal/config"
	"github.com/kkkkikiki/loyalty/internal/repository/memory"
	"github.com/kkkkikiki/loyalty/internal/service"
	"github.com/kkkkikiki/loyalty/internal/shopify"
)

func TestDefaultConfigHidesErrorDetails(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	opts := apiOptions(cfg)
	assert.False(t, opts.ExposeErrorDetails)

	const leaked = "shop admin internals"
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, leaked, http.StatusBadGateway)
	}))
	t.Cleanup(platform.Close)

	store := memory.New()
	svc := service.New(service.Deps{
		Store:    store,
		Commerce: shopify.NewWithBaseURL(platform.URL, "token", rate.Inf, 1, time.Second),
		Loyalty:  cfg.Loyalty,
		Auth:     cfg.Auth,
	})
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(svc, store, nil, opts)))
	t.Cleanup(srv.Close)

	post := func(path, body string) (int, []byte) {
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, raw
	}

	status, _ := post("/api/webhooks/orders", `{"id":1,"email":"ana@example.com","total_price":"5.00"}`)
	require.Equal(t, http.StatusOK, status)

	status, raw := post("/api/discount-codes", `{"email":"ana@example.com","pointsToUse":10}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.NotContains(t, body, "details")
	assert.NotContains(t, string(raw), leaked)
}

func TestExposeErrorDetailsFlag(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Environment = "production"
	cfg.App.ExposeErrorDetails = true
	assert.True(t, apiOptions(cfg).ExposeErrorDetails)
}
