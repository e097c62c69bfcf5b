// metahub client CLI: handshake, pull and push metadata.
//
//	client -addr host:1234 -key login:secret hello
//	client -addr host:1234 -key login:secret pull <hex-hash>...
//	client -addr host:1234 -key login:secret push <name> <hex-hash> <len> <metadata>
package main

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"dev.c0redev.metahub/internal/client"
	"dev.c0redev.metahub/internal/rpc"
	"dev.c0redev.metahub/internal/transport"
)

const protocolVersion = 2

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:1234", "server address")
		key      = flag.String("key", "", "license key (login:secret)")
		hostname = flag.String("hostname", defaultHostname(), "hostname reported in hello")
		useTLS   = flag.Bool("tls", false, "connect over TLS")
		useQUIC  = flag.Bool("quic", false, "connect over QUIC")
		insecure = flag.Bool("insecure", false, "skip TLS certificate verification")
	)
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *key == "" {
		logger.Fatal().Msg("-key is required")
	}
	args := flag.Args()
	if len(args) == 0 {
		logger.Fatal().Msg("command required: hello, pull, push")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var tlsConf *tls.Config
	if *useTLS || *useQUIC {
		tlsConf = transport.ClientTLSConfig(*insecure)
	}
	var conn net.Conn
	var err error
	if *useQUIC {
		conn, err = transport.DialQUIC(ctx, *addr, tlsConf)
	} else {
		conn, err = transport.Dial(ctx, *addr, tlsConf)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("dial")
	}

	c := client.New(conn, logger)
	defer c.Close()

	if err := c.Hello(protocolVersion, []byte(*key), *hostname); err != nil {
		logger.Fatal().Err(err).Msg("hello")
	}

	switch args[0] {
	case "hello":
		fmt.Println("ok")
	case "pull":
		runPull(logger, c, args[1:])
	case "push":
		runPush(logger, c, args[1:])
	default:
		logger.Fatal().Str("command", args[0]).Msg("unknown command")
	}
}

func runPull(logger zerolog.Logger, c *client.Client, args []string) {
	if len(args) == 0 {
		logger.Fatal().Msg("pull needs at least one hex hash")
	}
	hashes := make([][]byte, 0, len(args))
	for _, a := range args {
		h, err := hex.DecodeString(a)
		if err != nil {
			logger.Fatal().Str("hash", a).Err(err).Msg("bad hash")
		}
		hashes = append(hashes, h)
	}
	res, err := c.Pull(0, hashes)
	if err != nil {
		logger.Fatal().Err(err).Msg("pull")
	}
	hit := 0
	for i, st := range res.Statuses {
		if st == 0 {
			fmt.Printf("%s: miss\n", args[i])
			continue
		}
		f := res.Funcs[hit]
		hit++
		fmt.Printf("%s: %s len=%d popularity=%d metadata=%d bytes\n",
			args[i], f.Name, f.Len, f.Popularity, len(f.Metadata))
	}
}

func runPush(logger zerolog.Logger, c *client.Client, args []string) {
	if len(args) != 4 {
		logger.Fatal().Msg("push needs: name hex-hash len metadata")
	}
	h, err := hex.DecodeString(args[1])
	if err != nil {
		logger.Fatal().Err(err).Msg("bad hash")
	}
	length, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad length")
	}
	res, err := c.Push(0, "cli", []rpc.FuncEntry{{
		Name:     args[0],
		Len:      uint32(length),
		Hash:     h,
		Metadata: []byte(args[3]),
	}})
	if err != nil {
		logger.Fatal().Err(err).Msg("push")
	}
	for _, st := range res.Statuses {
		if st == 1 {
			fmt.Println("stored")
		} else {
			fmt.Println("unchanged")
		}
	}
}

func defaultHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
