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
	"crypto/sha1"
	"io"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/qpp"

	"github.com/xtaci/chantun/internal/mux"
	"github.com/xtaci/chantun/internal/transport"
)

const (
	// SALT is used as the PBKDF2 salt while deriving the shared session key.
	SALT = "kcp-go"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "chantun"
	myApp.Usage = "client"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "localaddr,l",
			Value: ":12948",
			Usage: "local listen address; every accepted connection opens a fresh remote shell session",
		},
		cli.StringFlag{
			Name:  "remoteaddr, r",
			Value: "vps:29900",
			Usage: `server address, eg: "IP:29900"; dialed as given, port ranges are not expanded`,
		},
		cli.StringFlag{
			Name:   "key",
			Value:  "it's a secrect",
			Usage:  "pre-shared secret between client and server",
			EnvVar: "CHANTUN_KEY",
		},
		cli.StringFlag{
			Name:  "crypt",
			Value: "aes",
			Usage: "aes, aes-128, aes-128-gcm, aes-192, salsa20, blowfish, twofish, cast5, 3des, tea, xtea, xor, sm4, none, null",
		},
		cli.StringFlag{
			Name:  "command",
			Value: "",
			Usage: "remote command line to run for each session; empty defers to the server's default",
		},
		cli.StringFlag{
			Name:  "mode",
			Value: "fast",
			Usage: "profiles: fast3, fast2, fast, normal, manual",
		},
		cli.BoolFlag{
			Name:  "QPP",
			Usage: "enable Quantum Permutation Pads(QPP)",
		},
		cli.IntFlag{
			Name:  "QPPCount",
			Value: 61,
			Usage: "the prime number of pads to use for QPP: The more pads you use, the more secure the encryption. Each pad requires 256 bytes.",
		},
		cli.IntFlag{
			Name:  "conn",
			Value: 1,
			Usage: "accepted for compatibility and unused: every local connection dials its own transport connection",
		},
		cli.IntFlag{
			Name:  "mtu",
			Value: 1350,
			Usage: "set maximum transmission unit for UDP packets",
		},
		cli.IntFlag{
			Name:  "ratelimit",
			Value: 0,
			Usage: "set maximum outgoing speed (in bytes per second) for a single KCP connection, 0 to disable.",
		},
		cli.IntFlag{
			Name:  "sndwnd",
			Value: 128,
			Usage: "set send window size(num of packets)",
		},
		cli.IntFlag{
			Name:  "rcvwnd",
			Value: 512,
			Usage: "set receive window size(num of packets)",
		},
		cli.IntFlag{
			Name:  "datashard,ds",
			Value: 10,
			Usage: "set reed-solomon erasure coding - datashard",
		},
		cli.IntFlag{
			Name:  "parityshard,ps",
			Value: 3,
			Usage: "set reed-solomon erasure coding - parityshard",
		},
		cli.IntFlag{
			Name:  "dscp",
			Value: 0,
			Usage: "set DSCP(6bit)",
		},
		cli.BoolFlag{
			Name:  "nocomp",
			Usage: "disable compression",
		},
		cli.BoolFlag{
			Name:   "acknodelay",
			Usage:  "flush ack immediately when a packet is received",
			Hidden: true,
		},
		cli.IntFlag{
			Name:   "nodelay",
			Value:  0,
			Hidden: true,
		},
		cli.IntFlag{
			Name:   "interval",
			Value:  50,
			Hidden: true,
		},
		cli.IntFlag{
			Name:   "resend",
			Value:  0,
			Hidden: true,
		},
		cli.IntFlag{
			Name:   "nc",
			Value:  0,
			Hidden: true,
		},
		cli.IntFlag{
			Name:  "sockbuf",
			Value: 4194304,
			Usage: "per-socket buffer in bytes",
		},
		cli.IntFlag{
			Name:  "maxoutgoingmsg",
			Value: 8192,
			Usage: "hard cap on a single outgoing multiplexer frame, in bytes",
		},
		cli.IntFlag{
			Name:  "keepalive",
			Value: 10,
			Usage: "accepted for compatibility and only logged; no heartbeats are sent",
		},
		cli.IntFlag{
			Name:  "closewait",
			Value: 0,
			Usage: "the seconds to wait before tearing down a connection",
		},
		cli.StringFlag{
			Name:  "snmplog",
			Value: "",
			Usage: "collect snmp to file, aware of timeformat in golang, like: ./snmp-20060102.log",
		},
		cli.IntFlag{
			Name:  "snmpperiod",
			Value: 60,
			Usage: "snmp collect period, in seconds",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "to suppress the 'session open/close' messages",
		},
		cli.BoolFlag{
			Name:  "tcp",
			Usage: "to emulate a TCP connection(linux)",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.LocalAddr = c.String("localaddr")
		config.RemoteAddr = c.String("remoteaddr")
		config.Key = c.String("key")
		config.Crypt = c.String("crypt")
		config.Command = c.String("command")
		config.Mode = c.String("mode")
		config.Conn = c.Int("conn")
		config.MTU = c.Int("mtu")
		config.RateLimit = c.Int("ratelimit")
		config.SndWnd = c.Int("sndwnd")
		config.RcvWnd = c.Int("rcvwnd")
		config.DataShard = c.Int("datashard")
		config.ParityShard = c.Int("parityshard")
		config.DSCP = c.Int("dscp")
		config.NoComp = c.Bool("nocomp")
		config.AckNodelay = c.Bool("acknodelay")
		config.NoDelay = c.Int("nodelay")
		config.Interval = c.Int("interval")
		config.Resend = c.Int("resend")
		config.NoCongestion = c.Int("nc")
		config.SockBuf = c.Int("sockbuf")
		config.MaxOutgoingMsg = c.Int("maxoutgoingmsg")
		config.KeepAlive = c.Int("keepalive")
		config.Log = c.String("log")
		config.SnmpLog = c.String("snmplog")
		config.SnmpPeriod = c.Int("snmpperiod")
		config.Quiet = c.Bool("quiet")
		config.TCP = c.Bool("tcp")
		config.Pprof = c.Bool("pprof")
		config.QPP = c.Bool("QPP")
		config.QPPCount = c.Int("QPPCount")
		config.CloseWait = c.Int("closewait")

		if c.String("c") != "" {
			err := parseJSONConfig(&config, c.String("c"))
			checkError(err)
		}

		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		switch config.Mode {
		case "normal":
			config.NoDelay, config.Interval, config.Resend, config.NoCongestion = 0, 40, 2, 1
		case "fast":
			config.NoDelay, config.Interval, config.Resend, config.NoCongestion = 0, 30, 2, 1
		case "fast2":
			config.NoDelay, config.Interval, config.Resend, config.NoCongestion = 1, 20, 2, 1
		case "fast3":
			config.NoDelay, config.Interval, config.Resend, config.NoCongestion = 1, 10, 2, 1
		}

		if _, err := transport.BuildSessionConfig(uint32(config.MaxOutgoingMsg)); err != nil {
			log.Fatalf("%+v", err)
		}

		log.Println("version:", VERSION)
		var listener net.Listener
		var isUnix bool
		if _, _, err := net.SplitHostPort(config.LocalAddr); err != nil {
			isUnix = true
		}
		if isUnix {
			addr, err := net.ResolveUnixAddr("unix", config.LocalAddr)
			checkError(err)
			listener, err = net.ListenUnix("unix", addr)
			checkError(err)
		} else {
			addr, err := net.ResolveTCPAddr("tcp", config.LocalAddr)
			checkError(err)
			listener, err = net.ListenTCP("tcp", addr)
			checkError(err)
		}

		log.Println("listening on:", listener.Addr())
		log.Println("encryption:", config.Crypt)
		log.Println("QPP:", config.QPP)
		log.Println("QPP Count:", config.QPPCount)
		log.Println("nodelay parameters:", config.NoDelay, config.Interval, config.Resend, config.NoCongestion)
		log.Println("remote address:", config.RemoteAddr)
		log.Println("sndwnd:", config.SndWnd, "rcvwnd:", config.RcvWnd)
		log.Println("compression:", !config.NoComp)
		log.Println("mtu:", config.MTU)
		log.Println("ratelimit:", config.RateLimit)
		log.Println("datashard:", config.DataShard, "parityshard:", config.ParityShard)
		log.Println("acknodelay:", config.AckNodelay)
		log.Println("dscp:", config.DSCP)
		log.Println("sockbuf:", config.SockBuf)
		log.Println("maxoutgoingmsg:", config.MaxOutgoingMsg)
		log.Println("keepalive:", config.KeepAlive)
		log.Println("closewait:", config.CloseWait)
		log.Println("snmplog:", config.SnmpLog)
		log.Println("snmpperiod:", config.SnmpPeriod)
		log.Println("quiet:", config.Quiet)
		log.Println("tcp:", config.TCP)
		log.Println("pprof:", config.Pprof)

		if config.QPP {
			if warnings, err := transport.ValidateQPPParams(config.QPPCount, config.Key); err != nil {
				log.Fatalf("%+v", err)
			} else {
				for _, w := range warnings {
					color.Red("QPP Warning: %s", w)
				}
			}
		}

		log.Println("initiating key derivation")
		pass := pbkdf2.Key([]byte(config.Key), []byte(SALT), 4096, 32, sha1.New)
		log.Println("key derivation done")
		block, effectiveCrypt := transport.SelectBlockCrypt(config.Crypt, pass)
		config.Crypt = effectiveCrypt

		go transport.SnmpLogger(config.SnmpLog, config.SnmpPeriod)

		if config.Pprof {
			go http.ListenAndServe(":6060", nil)
		}

		var _Q_ *qpp.QuantumPermutationPad
		if config.QPP {
			_Q_ = qpp.NewQPP([]byte(config.Key), uint16(config.QPPCount))
		}

		for {
			p1, err := listener.Accept()
			if err != nil {
				log.Fatalf("%+v", err)
			}
			go handleSession(_Q_, []byte(config.Key), p1, &config, block)
		}
	}
	myApp.Run(os.Args)
}

// handleSession dials a fresh transport connection to the server, negotiates
// the remote command to run via a handshake message, and bridges the local
// connection's bytes onto the remote shell's stdin/stdout/stderr/exit
// channels until either side closes.
func handleSession(_Q_ *qpp.QuantumPermutationPad, seed []byte, p1 net.Conn, config *Config, block kcp.BlockCrypt) {
	logln := func(v ...any) {
		if !config.Quiet {
			log.Println(v...)
		}
	}
	defer p1.Close()

	kcpconn, err := dial(config, block)
	if err != nil {
		logln("dial:", err)
		return
	}
	kcpconn.SetStreamMode(true)
	kcpconn.SetWriteDelay(false)
	kcpconn.SetNoDelay(config.NoDelay, config.Interval, config.Resend, config.NoCongestion)
	kcpconn.SetWindowSize(config.SndWnd, config.RcvWnd)
	kcpconn.SetMtu(config.MTU)
	kcpconn.SetACKNoDelay(config.AckNodelay)
	kcpconn.SetRateLimit(uint32(config.RateLimit))
	if err := kcpconn.SetDSCP(config.DSCP); err != nil {
		logln("SetDSCP:", err)
	}
	if err := kcpconn.SetReadBuffer(config.SockBuf); err != nil {
		logln("SetReadBuffer:", err)
	}
	if err := kcpconn.SetWriteBuffer(config.SockBuf); err != nil {
		logln("SetWriteBuffer:", err)
	}

	var remoteConn net.Conn = kcpconn
	var wire io.ReadWriteCloser = remoteConn
	if !config.NoComp {
		wire = transport.NewCompStream(remoteConn)
	}
	if _Q_ != nil {
		wire = transport.NewQPPPort(wire, _Q_, seed)
	}

	transport.ActiveSessions.Add(1)
	defer transport.ActiveSessions.Add(-1)

	logln("session opened", "in:", p1.RemoteAddr(), "out:", remoteConn.RemoteAddr())
	defer logln("session closed", "in:", p1.RemoteAddr(), "out:", remoteConn.RemoteAddr())

	if _, err := wire.Write(mux.EncodeHandshake([]byte(config.Command))); err != nil {
		logln("handshake:", err)
		return
	}

	remoteBridge, err := transport.NewBridge(wire)
	if err != nil {
		logln("remote bridge:", err)
		return
	}
	defer remoteBridge.FromPeer.Close()
	defer remoteBridge.ToPeer.Close()

	localBridge, err := transport.NewBridge(p1)
	if err != nil {
		logln("local bridge:", err)
		return
	}
	defer localBridge.FromPeer.Close()
	defer localBridge.ToPeer.Close()

	exitR, exitW, err := os.Pipe()
	if err != nil {
		logln(err)
		return
	}
	defer exitR.Close()
	go func() {
		var code [1]byte
		if n, _ := exitR.Read(code[:]); n == 1 {
			logln("remote exit status:", int(code[0]))
		}
	}()

	sessCfg, err := transport.BuildSessionConfig(uint32(config.MaxOutgoingMsg))
	if err != nil {
		logln(err)
		return
	}

	fds := mux.ShellFDs{
		Stdin:  int(localBridge.FromPeer.Fd()),
		Stdout: int(localBridge.ToPeer.Fd()),
		Stderr: int(localBridge.ToPeer.Fd()),
		Exit:   int(exitW.Fd()),
	}
	// On the client, stdin is FromFD (read from the local connection and
	// forwarded to the peer); the rest receive DATA from the peer and are
	// written back out to the local connection.
	clientFromFD := func(ch int) bool { return ch == mux.ChStdin }

	session, err := mux.NewShellSession(int(remoteBridge.FromPeer.Fd()), int(remoteBridge.ToPeer.Fd()), fds, clientFromFD, sessCfg, 1<<20)
	if err != nil {
		logln(err)
		return
	}

	if err := session.Run(); err != nil {
		logln("session:", err)
	}

	if config.CloseWait > 0 {
		time.Sleep(time.Duration(config.CloseWait) * time.Second)
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", errors.WithStack(err))
		os.Exit(-1)
	}
}
