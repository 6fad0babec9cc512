package main

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"quoting/internal/common"
	"quoting/internal/gateway"
	"quoting/internal/mainutil"
	"quoting/internal/signer"
)

var Options struct {
	Endpoint  string
	ID        string
	Keyfile   string
	Password  string
	Timeout   time.Duration
	SpreadBps int `traits:"ge=0"`
	GenKey    string
	Verbose   bool
	Help      bool
}

var flags flag.FlagSet

func init() {
	flags.StringVarP(&Options.Endpoint, "endpoint", "e", "", "gateway ws endpoint")
	flags.StringVarP(&Options.ID, "id", "i", "", "market maker id")
	flags.StringVarP(&Options.Keyfile, "keyfile", "k", "", "signing key file")
	flags.StringVarP(&Options.Password, "password", "p", "", "keyfile password")
	flags.DurationVarP(&Options.Timeout, "timeout", "t", gateway.DefaultHandshakeTimeout, "connect timeout")
	flags.IntVarP(&Options.SpreadBps, "spread", "s", 10, "quoted spread, basis points")
	flags.StringVarP(&Options.GenKey, "genkey", "", "", "generate a signing key file and exit")
	flags.BoolVarP(&Options.Verbose, "verbose", "v", false, "debug logging")
	flags.BoolVarP(&Options.Help, "help", "", false, "this help message")
	flags.SetInterspersed(false)
	flags.SetOutput(io.Discard)
}

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
	if Options.GenKey != "" {
		return genkey(Options.GenKey, Options.Password)
	}
	if Options.Endpoint == "" {
		stderr.Print("Endpoint?")
		return nil, 1
	}
	if Options.ID == "" {
		stderr.Print("Market maker id?")
		return nil, 1
	}
	if Options.Keyfile == "" {
		stderr.Print("Keyfile?")
		return nil, 1
	}

	key, err := signer.LoadKeyFile(Options.Keyfile, Options.Password)
	if err != nil {
		return err, 1
	}

	log := newLogger(Options.Verbose)
	pricer := NewSpreadPricer(Options.SpreadBps)

	client, err := gateway.NewClient(Options.Endpoint, Options.ID, key, pricer.Quote,
		common.OptionLogger(log),
		gateway.OptionHandshakeTimeout(Options.Timeout),
		gateway.OptionOnConnect(func() {
			log.Info().Str("id", Options.ID).Msg("quoting")
		}))
	if err != nil {
		return err, 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			client.Close()
			return nil, 0
		}
		return err, 1
	}
	client.Close()
	return nil, 0
}

func genkey(path, password string) (err error, ret int) {
	key, err := signer.GenerateKey()
	if err != nil {
		return err, 1
	}
	if err := signer.WriteKeyFile(path, key, password); err != nil {
		return err, 1
	}
	stdout.Printf("public key: %s", hex.EncodeToString(signer.Public(key)))
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
