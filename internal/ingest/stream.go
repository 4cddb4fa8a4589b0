package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
	"glycoscope/internal/normalize"
)

// StartStream accepts newline-delimited readings over TCP, one reading
// per line in any format the parser understands.
func StartStream(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.SubjectReading, logger *slog.Logger) {
	current := cfg.Get().Ingest.Stream
	if !current.Enabled {
		if logger != nil {
			logger.Info("stream ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("stream ingest enabled", "addr", current.Addr)
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("stream listen error", "err", err)
		}
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("stream accept error", "err", err)
				}
				continue
			}
			go handleStreamConn(ctx, conn, cfg, parser, out, logger)
		}
	}()
}

func handleStreamConn(ctx context.Context, conn net.Conn, cfg *config.Manager, parser *Parser, out chan<- model.SubjectReading, logger *slog.Logger) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		fields, err := parser.ParseLine(scanner.Text())
		if err != nil || fields == nil {
			continue
		}
		reading, subjectID, err := normalize.Normalize(*fields, cfg.Get())
		if err != nil {
			if logger != nil {
				logger.Warn("stream normalize error", "err", err)
			}
			continue
		}
		SendNonBlocking(ctx, out, model.SubjectReading{SubjectID: subjectID, Reading: reading}, logger)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("stream scanner error", "err", err)
	}
}
