// Probe runs a loopback self-test: an in-process gateway, a connected
// client, and a configurable number of quote round trips.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"quoting/internal/common"
	"quoting/internal/gateway"
	"quoting/internal/gateway/gatewaytest"
	"quoting/internal/mainutil"
	"quoting/internal/signer"
)

var Options struct {
	Count   int `traits:"ge=1"`
	Verbose bool
	Help    bool
}

var flags flag.FlagSet

func init() {
	flags.IntVarP(&Options.Count, "count", "n", 100, "quote round trips")
	flags.BoolVarP(&Options.Verbose, "verbose", "v", false, "debug logging")
	flags.BoolVarP(&Options.Help, "help", "", false, "this help message")
	flags.SetInterspersed(false)
	flags.SetOutput(io.Discard)
}

var (
	stdout = log.New(os.Stdout, "", 0)
	stderr = log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
)

func run() (err error, ret int) {
	if err := mainutil.ParseArgs(&flags); err != nil {
		if err == flag.ErrHelp {
			Options.Help = true
		} else {
			return err, 1
		}
	}
	if Options.Help {
		stdout.Print(flags.FlagUsages())
		return nil, 1
	}
	if err := mainutil.Validate(Options); err != nil {
		stderr.Print(err)
		return nil, 1
	}

	logger := zerolog.Nop()
	if Options.Verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	key, err := signer.GenerateKey()
	if err != nil {
		return err, 1
	}
	srv, err := gatewaytest.Start(
		gatewaytest.OptionPublicKey(signer.Public(key)),
		common.OptionLogger(logger))
	if err != nil {
		return err, 1
	}
	defer srv.Close()

	passthrough := func(ctx context.Context, q gateway.Quote) (string, string, error) {
		return q.DepositAmount, q.DepositAmount, nil
	}
	client, err := gateway.NewClient(srv.URL(), "probe", key, passthrough,
		common.OptionLogger(logger))
	if err != nil {
		return err, 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Connect(ctx) }()

	select {
	case <-srv.Connected():
	case err := <-done:
		if err == nil {
			err = errors.New("session ended before handshake")
		}
		return err, 1
	case <-time.After(5 * time.Second):
		return errors.New("no session within 5s"), 1
	}

	bar := mainutil.NewProgressBar(Options.Count)
	for i := 0; i < Options.Count; i++ {
		id := uuid.NewString()
		q := gateway.Quote{
			ID:               id,
			SourceAsset:      "BTC",
			DestinationAsset: "USDC",
			DepositAmount:    strconv.Itoa(1000 + i),
		}
		if err := srv.PushQuote(q); err != nil {
			return err, 1
		}
		select {
		case resp := <-srv.Responses():
			if resp.ID != id {
				return fmt.Errorf("response id %s for quote %s", resp.ID, id), 1
			}
			if resp.EgressAmount != q.DepositAmount {
				return fmt.Errorf("egress %s for deposit %s", resp.EgressAmount, q.DepositAmount), 1
			}
		case <-time.After(5 * time.Second):
			return fmt.Errorf("no response for quote %s", id), 1
		}
		bar.Add(1)
	}

	client.Close()
	<-done
	stdout.Printf("OK: %d round trips", Options.Count)
	return nil, 0
}

func main() {
	err, ret := run()
	if err != nil {
		stderr.Println("Error:", err)
	}
	if ret != 0 {
		os.Exit(ret)
	}
}
