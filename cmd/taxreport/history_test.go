package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"chain-tax-lab/internal/domain"
)

func TestPrintJobs(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	var buf bytes.Buffer
	printJobs(&buf, []*domain.ReportJob{
		{JobID: "j2", Status: domain.JobStatusFailed, Stage: "fetch", PeriodStart: start, Error: "node down"},
		{JobID: "j1", Status: domain.JobStatusCompleted, Stage: "store", PeriodStart: start, PeriodEnd: start, Events: 4},
	})

	assert.Equal(t,
		"j2  failed     fetch     2024-01-01..open  events=0 errors=0  node down\n"+
			"j1  completed  store     2024-01-01..2024-01-01  events=4 errors=0\n",
		buf.String())

	buf.Reset()
	printJobs(&buf, nil)
	assert.Equal(t, "no jobs\n", buf.String())
}

func TestPrintQuotes(t *testing.T) {
	var buf bytes.Buffer
	printQuotes(&buf, []*domain.PriceQuote{{
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		PriceUSD:  decimal.RequireFromString("6.25"),
		Source:    domain.PriceSourceExternal,
	}})
	assert.Equal(t, "2024-06-01T12:00:00Z  $6.25  external\n", buf.String())
}
