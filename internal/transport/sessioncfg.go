// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package transport

import (
	"github.com/pkg/errors"
	"github.com/xtaci/chantun/internal/mux"
)

// BuildSessionConfig constructs a mux.Config from CLI parameters and verifies
// the result. Callers can log or wrap the returned error for better
// diagnostics.
func BuildSessionConfig(maxOutgoingMsg uint32) (mux.Config, error) {
	cfg := mux.Config{MaxOutgoingMsg: maxOutgoingMsg}
	return cfg, VerifySessionConfig(cfg)
}

// VerifySessionConfig rejects a mux.Config whose MaxOutgoingMsg is below
// mux.MinOutgoingMsg: a cap that small cannot fit a CHANNEL_WINDOW frame,
// so the session could never acknowledge received data.
func VerifySessionConfig(cfg mux.Config) error {
	if cfg.MaxOutgoingMsg < mux.MinOutgoingMsg {
		return errors.Errorf("maxoutgoingmsg must be at least %d, got %d", mux.MinOutgoingMsg, cfg.MaxOutgoingMsg)
	}
	return nil
}
