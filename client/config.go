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

package main

import (
	"encoding/json"
	"os"
)

// Config for client
type Config struct {
	LocalAddr      string `json:"localaddr"`
	RemoteAddr     string `json:"remoteaddr"`
	Key            string `json:"key"`
	Crypt          string `json:"crypt"`
	Mode           string `json:"mode"`
	Conn           int    `json:"conn"`
	MTU            int    `json:"mtu"`
	RateLimit      int    `json:"ratelimit"`
	SndWnd         int    `json:"sndwnd"`
	RcvWnd         int    `json:"rcvwnd"`
	DataShard      int    `json:"datashard"`
	ParityShard    int    `json:"parityshard"`
	DSCP           int    `json:"dscp"`
	NoComp         bool   `json:"nocomp"`
	AckNodelay     bool   `json:"acknodelay"`
	NoDelay        int    `json:"nodelay"`
	Interval       int    `json:"interval"`
	Resend         int    `json:"resend"`
	NoCongestion   int    `json:"nc"`
	SockBuf        int    `json:"sockbuf"`
	MaxOutgoingMsg int    `json:"maxoutgoingmsg"`
	KeepAlive      int    `json:"keepalive"`
	CloseWait      int    `json:"closewait"`
	Log            string `json:"log"`
	SnmpLog        string `json:"snmplog"`
	SnmpPeriod     int    `json:"snmpperiod"`
	Quiet          bool   `json:"quiet"`
	TCP            bool   `json:"tcp"`
	Pprof          bool   `json:"pprof"`
	QPP            bool   `json:"qpp"`
	QPPCount       int    `json:"qpp-count"`
	// Command is the remote command each local connection asks the
	// server to run; empty means the server's configured default shell.
	Command string `json:"command"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path) // For read access.
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
