// Copyright 2025 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gobmsg

import (
	"reflect"

	"github.com/thediveo/fdpass/uds"
)

type (
	// FdsEncoder is implemented by message types with fields holding open
	// file descriptors to be passed along with the message. EncodeFds
	// returns these file descriptors and zeroes their fields.
	FdsEncoder interface{ EncodeFds() (fds []int) }
	// FdsDecoder is implemented by message types with fields holding open
	// file descriptors. DecodeFds takes over the file descriptors it knows
	// about using [uds.Fds.Take]; all others are closed afterwards.
	FdsDecoder interface{ DecodeFds(fds *uds.Fds) }
)

// AuxiliaryFds is a list of open file descriptors, to be transferred as
// auxiliary data with some message.
type AuxiliaryFds []int

// Borrow checks if an fd is set (>0) and then appends it to the list of file
// descriptors to transmit as auxiliary data as well as zero'ing the fd value
// in its original place (as we don't want to transmit it twice in-band and
// out-of-band). If the referenced fd isn't set, then the original fd list will
// be returned unchanged.
func (f AuxiliaryFds) Borrow(fd *int) AuxiliaryFds {
	if *fd <= 0 {
		return f
	}
	fds := append(f, *fd)
	*fd = 0
	return fds
}

// implementation returns v as type I, looking through a pointer to an
// interface, such as when sending or receiving polymorphic messages.
func implementation[I any](v any) (I, bool) {
	if i, ok := v.(I); ok {
		return i, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() &&
		rv.Elem().Kind() == reflect.Interface && !rv.Elem().IsNil() {
		i, ok := rv.Elem().Interface().(I)
		return i, ok
	}
	var zero I
	return zero, false
}
