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

package queue

import "errors"

var (
	// ErrBusy is returned by ProcessByID when the pump is not idle.
	ErrBusy = errors.New("queue: a request is already being processed")
	// ErrAlreadyProcessed is returned when the requested id is already in
	// the archive.
	ErrAlreadyProcessed = errors.New("queue: message already processed")
	// ErrInvalidID is returned when the requested id is neither queued
	// nor archived.
	ErrInvalidID = errors.New("queue: invalid message id")
)
