// Copyright (C) 2024 The async-file-server Authors.
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

// Command peerd is the non-interactive entry point for a single peer
// (spec.md §6 Environment). The interactive terminal menu named in
// spec.md §1 is deliberately not implemented here; this is the minimal
// flag-driven boot path the core needs for standalone operation.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/calmh/incontainer"
	"github.com/thejerf/suture/v4"
	"github.com/willabides/kongplete"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/klegy/asyncfileserver/internal/errreport"
	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/logger"
	"github.com/klegy/asyncfileserver/internal/metadata"
	"github.com/klegy/asyncfileserver/internal/metrics"
	"github.com/klegy/asyncfileserver/internal/netinfo"
	"github.com/klegy/asyncfileserver/internal/netio"
	"github.com/klegy/asyncfileserver/internal/peercache"
	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/klegy/asyncfileserver/internal/pump"
	"github.com/klegy/asyncfileserver/internal/queue"
	"github.com/klegy/asyncfileserver/internal/settings"
	"github.com/klegy/asyncfileserver/internal/state"
	"github.com/klegy/asyncfileserver/internal/support"
	"github.com/klegy/asyncfileserver/internal/transfer"
)

var l = logger.DefaultLogger

// eventAdapter satisfies transfer.Logger/metadata.Logger (which tag
// events against an already-active queued request) for call sites that
// have no queue.Registry at hand, such as the standalone "send" command.
type eventAdapter struct{ logger *events.Logger }

func (a eventAdapter) Log(t events.EventType, fields map[string]any) events.Event {
	return a.logger.Log(t, 0, fields)
}

type serveCmd struct {
	Port          uint32 `help:"Listen port." default:"5000"`
	Folder        string `help:"Transfer folder." required:""`
	CIDR          string `help:"CIDR hint for local IP discovery."`
	ConnectMS     int    `help:"Connect timeout, ms." default:"5000"`
	ReceiveMS     int    `help:"Receive timeout, ms." default:"5000"`
	SendMS        int    `help:"Send timeout, ms." default:"5000"`
	StallSeconds  int    `help:"Inbound stall timeout, seconds." default:"10"`
	BufferSize    int    `help:"Socket read buffer size." default:"4096"`
	ArchiveDBPath string `help:"Optional goleveldb path for durable archive."`
	MetricsAddr   string `help:"Optional address to serve /metrics and /healthz."`
	SentryDSN     string `help:"Optional Sentry DSN for fatal pump errors."`
}

type sendCmd struct {
	File         string `help:"Local file to push." required:""`
	RemoteHost   string `help:"Peer host." required:""`
	RemotePort   uint32 `help:"Peer port." required:""`
	RemoteFolder string `help:"Destination folder on the peer." required:""`
	LocalIP      string `help:"This peer's advertised IP." default:"127.0.0.1"`
	LocalPort    uint32 `help:"This peer's advertised port." default:"0"`
}

type supportBundleCmd struct {
	ArchiveDBPath string `help:"goleveldb archive path to read." required:""`
	Out           string `help:"Output bundle path." default:"support-bundle.lz4"`
}

var cli struct {
	Serve              serveCmd                     `cmd:"" help:"Run the request-processing engine and accept one peer at a time."`
	Send               sendCmd                      `cmd:"" help:"Send a push request for a single file to a running peer; this command does not stream the file bytes."`
	SupportBundle      supportBundleCmd             `cmd:"" name:"support-bundle" help:"Export the durable archive as a compressed bundle."`
	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions."`
}

func main() {
	parser := kong.Must(&cli, kong.Name("peerd"))
	kongplete.Complete(parser)
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	switch ctx.Command() {
	case "serve":
		err = runServe(cli.Serve)
	case "send":
		err = runSend(cli.Send)
	case "support-bundle":
		err = runSupportBundle(cli.SupportBundle)
	case "install-completions":
		err = cli.InstallCompletions.Run(ctx)
	default:
		err = fmt.Errorf("unknown command %q", ctx.Command())
	}
	if err != nil {
		l.Warnf("peerd: %v", err)
		os.Exit(1)
	}
}

func runServe(c serveCmd) error {
	undo, err := maxprocs.Set(maxprocs.Logger(func(f string, a ...any) { l.Debugf(f, a...) }))
	if err != nil {
		l.Warnf("automaxprocs: %v", err)
	} else {
		defer undo()
	}
	l.Infof("running in container: %v", incontainer.Detect())

	rt := settings.Defaults()
	rt.ListenPort = c.Port
	rt.TransferFolder = c.Folder
	rt.LocalCIDRHint = c.CIDR
	rt.ConnectTimeout = time.Duration(c.ConnectMS) * time.Millisecond
	rt.ReceiveTimeout = time.Duration(c.ReceiveMS) * time.Millisecond
	rt.SendTimeout = time.Duration(c.SendMS) * time.Millisecond
	rt.StallTimeout = time.Duration(c.StallSeconds) * time.Second
	rt.BufferSize = c.BufferSize
	rt.ArchiveDBPath = c.ArchiveDBPath
	rt.MetricsAddr = c.MetricsAddr
	rt.SentryDSN = c.SentryDSN

	resolver := &netinfo.DefaultResolver{CIDRHint: rt.LocalCIDRHint}
	resolveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	localIP, publicIP, err := resolver.Resolve(resolveCtx)
	cancel()
	if err != nil {
		l.Warnf("netinfo: %v (continuing with whatever addresses were resolved)", err)
	}

	sink, err := errreport.New(rt.SentryDSN)
	if err != nil {
		return fmt.Errorf("errreport: %w", err)
	}

	var store queue.ArchiveStore
	if rt.ArchiveDBPath != "" {
		s, err := queue.OpenLevelDBArchiveStore(rt.ArchiveDBPath)
		if err != nil {
			return fmt.Errorf("archive store: %w", err)
		}
		defer s.Close()
		store = s
	}

	flags := state.NewFlags()
	scratch := &state.Scratch{}
	meta := &state.MetadataScratch{}
	registry := queue.NewRegistry(flags, events.Default, store)

	self := func() protocol.ServerInfo {
		ip := ""
		if localIP != nil {
			ip = localIP.String()
		}
		pub := ""
		if publicIP != nil {
			pub = publicIP.String()
		}
		return protocol.ServerInfo{
			SessionIP:      ip,
			LocalIP:        ip,
			PublicIP:       pub,
			Port:           rt.ListenPort,
			TransferFolder: rt.TransferFolder,
		}
	}

	sender := &transfer.Sender{
		Dial: netio.Dial, Flags: flags, Scratch: scratch, Log: registry,
		ConnectTimeout: rt.ConnectTimeout, SendTimeout: rt.SendTimeout, ReceiveTimeout: rt.ReceiveTimeout,
		BufferSize: rt.BufferSize,
	}
	receiver := &transfer.Receiver{
		Dial: netio.Dial, Flags: flags, Scratch: scratch, Log: registry,
		ConnectTimeout: rt.ConnectTimeout, SendTimeout: rt.SendTimeout, StallTimeout: rt.StallTimeout,
		BufferSize: rt.BufferSize, ProgressInterval: rt.TransferUpdateInterval,
	}
	exchange := &metadata.Exchange{
		Dial: netio.Dial, Log: registry,
		ConnectTimeout: rt.ConnectTimeout, SendTimeout: rt.SendTimeout,
		Self: self,
	}
	dispatcher := &pump.Dispatcher{
		Sender: sender, Receiver: receiver, Exchange: exchange,
		Flags: flags, Meta: meta, Log: registry, Self: self,
		Peers: peercache.New(),
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", rt.ListenPort))
	if err != nil {
		sink.Report(err)
		return fmt.Errorf("listen: %w", err)
	}

	p := pump.New(ln, registry, dispatcher, flags, registry, rt.BufferSize, rt.ReceiveTimeout)
	p.OnFatal = sink.Report
	receiver.RawAccepter = p

	watchdog := &transfer.Watchdog{Flags: flags, Scratch: scratch, Log: registry, Interval: time.Second}

	sup := suture.NewSimple("peerd")
	sup.Add(p)
	sup.Add(watchdog)

	sub := metrics.Observe(events.Default)
	defer sub.Close()

	if rt.MetricsAddr != "" {
		srv := &http.Server{Addr: rt.MetricsAddr, Handler: metrics.NewHandler(flags, rt.TransferFolder)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				l.Warnf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	flags.SetInitialized(true)
	l.Infof("peerd listening on :%d, folder=%s", rt.ListenPort, rt.TransferFolder)
	return sup.Serve(ctx)
}

func runSend(c sendCmd) error {
	info, err := os.Stat(c.File)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	flags := state.NewFlags()
	scratch := &state.Scratch{}
	sender := &transfer.Sender{
		Dial: netio.Dial, Flags: flags, Scratch: scratch, Log: eventAdapter{events.Default},
		ConnectTimeout: 5 * time.Second, SendTimeout: 5 * time.Second, ReceiveTimeout: 5 * time.Second,
		BufferSize: 4096,
	}
	return sender.RequestPush(c.RemoteHost, c.RemotePort, c.File, info.Size(), c.LocalIP, c.LocalPort, c.RemoteFolder)
}

func runSupportBundle(c supportBundleCmd) error {
	store, err := queue.OpenLevelDBArchiveStore(c.ArchiveDBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	archived, err := store.Load()
	if err != nil {
		return fmt.Errorf("load archive: %w", err)
	}

	out, err := os.Create(filepath.Clean(c.Out))
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer out.Close()

	if err := support.WriteBundle(out, archived); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	l.Okf("wrote support bundle to %s (%d messages)", c.Out, len(archived))
	return nil
}
