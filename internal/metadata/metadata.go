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

// Package metadata implements the metadata exchange (C9): server-info
// request/response and non-recursive directory listing.
package metadata

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/netio"
	"github.com/klegy/asyncfileserver/internal/protocol"
)

// Logger is the subset of queue.Registry's API this package needs.
type Logger interface {
	Log(t events.EventType, fields map[string]any) events.Event
}

// Dialer opens a new outbound connection; satisfied by netio.Dial.
type Dialer func(host string, port uint32, deadline time.Time) (netio.Conn, error)

// Exchange answers ServerInfoRequest and FileListRequest messages. Every
// response opens a new connection to the requestor (spec §4.8).
type Exchange struct {
	Dial           Dialer
	Log            Logger
	ConnectTimeout time.Duration
	SendTimeout    time.Duration

	// Self returns this peer's current identity; called fresh on every
	// request so a changed local/public IP is always reflected.
	Self func() protocol.ServerInfo
}

// HandleServerInfoRequest replies with this peer's ServerInfo (spec §4.8).
func (e *Exchange) HandleServerInfoRequest(requestorIP string, requestorPort uint32) error {
	info := e.Self()
	conn, err := e.Dial(requestorIP, requestorPort, time.Now().Add(e.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("metadata: dial server info reply: %w", err)
	}
	defer conn.Close()

	frame := protocol.EncodeServerInfoResponse(info.LocalIP, info.Port, info.PublicIP, info.TransferFolder)
	if err := conn.SendAll(frame, time.Now().Add(e.SendTimeout)); err != nil {
		return fmt.Errorf("metadata: send server info: %w", err)
	}
	e.Log.Log(events.ServerInfoExchanged, map[string]any{"requestor_ip": requestorIP, "requestor_port": requestorPort})
	return nil
}

// HandleFileListRequest enumerates targetFolder non-recursively, skipping
// dot-prefixed entries, and replies FileListResponse, or
// RequestedFolderDoesNotExist / NoFilesAvailableForDownload as appropriate
// (spec §4.8).
func (e *Exchange) HandleFileListRequest(requestorIP string, requestorPort uint32, targetFolder string) error {
	entries, err := os.ReadDir(targetFolder)
	if err != nil {
		if os.IsNotExist(err) {
			return e.reply(requestorIP, requestorPort, protocol.RequestedFolderDoesNotExist, func() {
				e.Log.Log(events.RequestedFolderDoesNotExist, map[string]any{"folder": targetFolder})
			})
		}
		return fmt.Errorf("metadata: read folder: %w", err)
	}

	list, n := formatListing(entries)
	if n == 0 {
		return e.reply(requestorIP, requestorPort, protocol.NoFilesAvailableForDownload, func() {
			e.Log.Log(events.NoFilesAvailableForDownload, map[string]any{"folder": targetFolder})
		})
	}

	conn, err := e.Dial(requestorIP, requestorPort, time.Now().Add(e.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("metadata: dial file list reply: %w", err)
	}
	defer conn.Close()

	info := e.Self()
	frame := protocol.EncodeFileListResponse(info.LocalIP, info.Port, targetFolder, list)
	if err := conn.SendAll(frame, time.Now().Add(e.SendTimeout)); err != nil {
		return fmt.Errorf("metadata: send file list: %w", err)
	}
	e.Log.Log(events.RequestReceived, map[string]any{"folder": targetFolder, "count": n})
	return nil
}

// formatListing builds the "*"-separated, "|"-delimited entry list spec §6
// describes: entry := path "|" size_decimal. Directories and dot-prefixed
// names are skipped (spec §4.8: non-recursive, dot-files skipped).
func formatListing(entries []os.DirEntry) (string, int) {
	var parts []string
	for _, ent := range entries {
		if ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		parts = append(parts, ent.Name()+"|"+strconv.FormatInt(info.Size(), 10))
	}
	return strings.Join(parts, "*"), len(parts)
}

func (e *Exchange) reply(requestorIP string, requestorPort uint32, t protocol.MessageType, logFn func()) error {
	conn, err := e.Dial(requestorIP, requestorPort, time.Now().Add(e.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("metadata: dial reply: %w", err)
	}
	defer conn.Close()
	info := e.Self()
	frame := protocol.EncodePeerEndpoint(t, info.LocalIP, info.Port)
	if err := conn.SendAll(frame, time.Now().Add(e.SendTimeout)); err != nil {
		return fmt.Errorf("metadata: send reply: %w", err)
	}
	logFn()
	return nil
}
