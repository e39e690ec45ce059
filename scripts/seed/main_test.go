package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

func TestInvalidateChartDropsCachedAccounts(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	chart := accounts.NewStaticResolver(accounts.Account{Code: "CASH", Currency: "UGX", AllowsPosting: true, IsActive: true})
	resolver := accounts.NewCachedResolver(chart, client, time.Hour)
	_, err := resolver.Resolve(ctx, "CASH")
	require.NoError(t, err)
	require.True(t, srv.Exists("ledger:coa:1:CASH"))

	require.NoError(t, invalidateChart(ctx, client))
	version, err := srv.Get("ledger:coa:version")
	require.NoError(t, err)
	require.Equal(t, "2", version)

	_, err = resolver.Resolve(ctx, "CASH")
	require.NoError(t, err)
	require.True(t, srv.Exists("ledger:coa:2:CASH"))
}

func TestChartHasPostableCashLegs(t *testing.T) {
	codes := map[string]seedAccount{}
	for _, a := range chart() {
		codes[a.code] = a
	}
	require.True(t, codes["CASH"].allowsPosting)
	require.True(t, codes["CUSTOMER_DEPOSITS"].allowsPosting)
	require.True(t, codes["ASSETS"].isControl)
}
