// Entry point
//
// This file is part of caro-server.
//
// caro-server is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License,
// version 3, as published by the Free Software Foundation.
//
// caro-server is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Affero General Public License for more details.

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/broadcast"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/config"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/history"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/lobby"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/logging"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/observer"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/server"
)

// defaultConfPath mirrors the teacher's "server.toml" default name.
const defaultConfPath = "caro-server.toml"

func main() {
	var confFile string

	root := &cobra.Command{
		Use:   "caro-server",
		Short: "Authoritative server for 15x15 five-in-a-row",
	}
	root.PersistentFlags().StringVar(&confFile, "conf", defaultConfPath, "path to configuration file")

	root.AddCommand(newServeCmd(&confFile))
	root.AddCommand(newDumpConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConf(path string) (*config.Conf, error) {
	conf, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) && path == defaultConfPath {
			defaults := config.DefaultConfig
			return &defaults, nil
		}
		return nil, err
	}
	return conf, nil
}

func newServeCmd(confFile *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the TCP server and observer endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConf(*confFile)
			if err != nil {
				return err
			}
			if listen != "" {
				host, port, err := net.SplitHostPort(listen)
				if err != nil {
					return fmt.Errorf("--listen: %w", err)
				}
				conf.TCP.Host = host
				if _, err := fmt.Sscanf(port, "%d", &conf.TCP.Port); err != nil {
					return fmt.Errorf("--listen: invalid port %q", port)
				}
			}
			return run(conf)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "override the TCP listen address (host:port)")

	return cmd
}

func newDumpConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump-config",
		Short: "Print the default configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults := config.DefaultConfig
			return config.Dump(&defaults, os.Stdout)
		},
	}
}

// run wires together the Lobby, Broadcaster, History store, Observer
// hub and the TCP connection handler, then blocks until a SIGINT or
// SIGTERM arrives, mirroring the teacher's os/signal-driven shutdown
// in conf.go's start function.
func run(conf *config.Conf) error {
	log, err := logging.New(conf.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := history.Open(conf.Database.File, log)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer store.Close()

	lob := lobby.New(log)
	lob.SetHistory(store)

	bc := broadcast.New(lob, log)
	lob.SetOnChange(bc.Signal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(lob, log)
	addr, err := srv.Listen(conf.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", conf.Addr(), err)
	}
	log.Info("tcp listener ready", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	var obsSrv *http.Server
	if conf.Observer.Enabled {
		hub := observer.NewHub(lob, log)
		mux := http.NewServeMux()
		mux.Handle("/observer", hub)
		obsSrv = &http.Server{Addr: conf.ObserverAddr(), Handler: mux}
		go func() {
			if err := obsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("observer endpoint failed", zap.Error(err))
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped", zap.Error(err))
		}
	}

	cancel()
	srv.Close()
	if obsSrv != nil {
		obsSrv.Close()
	}
	return nil
}
