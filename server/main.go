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
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/exec"
	"strings"
	"sync"
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
		// Enable timestamps + file:line to simplify debugging self-built binaries.
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "chantun"
	myApp.Usage = "server"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":29900",
			Usage: `listen address, eg: "IP:29900" for a single port, "IP:minport-maxport" for port range`,
		},
		cli.StringFlag{
			Name:  "target, t",
			Value: "/bin/sh",
			Usage: "default command line to exec for each incoming session when the client doesn't request one",
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
		cli.BoolFlag{
			Name:  "QPP",
			Usage: "enable Quantum Permutation Pads(QPP)",
		},
		cli.IntFlag{
			Name:  "QPPCount",
			Value: 61,
			Usage: "the prime number of pads to use for QPP: The more pads you use, the more secure the encryption. Each pad requires 256 bytes.",
		},
		cli.StringFlag{
			Name:  "mode",
			Value: "fast",
			Usage: "profiles: fast3, fast2, fast, normal, manual",
		},
		cli.IntFlag{
			Name:  "mtu",
			Value: 1350,
			Usage: "set maximum transmission unit for UDP packets",
		},
		cli.IntFlag{
			Name:  "ratelimit",
			Value: 0,
			Usage: "set maximum outgoing speed (in bytes per second) for a single KCP connection, 0 to disable. Also known as packet pacing.",
		},
		cli.IntFlag{
			Name:  "sndwnd",
			Value: 1024,
			Usage: "set send window size(num of packets)",
		},
		cli.IntFlag{
			Name:  "rcvwnd",
			Value: 1024,
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
			Value: 4194304, // socket buffer size in bytes
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
			Value: 30,
			Usage: "the seconds to wait before tearing down a finished session's transport",
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
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
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
			Value: "", // when set, the JSON file must exist on disk
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.Listen = c.String("listen")
		config.Target = c.String("target")
		config.Key = c.String("key")
		config.Crypt = c.String("crypt")
		config.Mode = c.String("mode")
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
		config.CloseWait = c.Int("closewait")
		config.Log = c.String("log")
		config.SnmpLog = c.String("snmplog")
		config.SnmpPeriod = c.Int("snmpperiod")
		config.Pprof = c.Bool("pprof")
		config.Quiet = c.Bool("quiet")
		config.TCP = c.Bool("tcp")
		config.QPP = c.Bool("QPP")
		config.QPPCount = c.Int("QPPCount")

		if c.String("c") != "" {
			// Only JSON configuration files are supported at the moment.
			err := parseJSONConfig(&config, c.String("c"))
			checkError(err)
		}

		if config.RateLimit < 0 {
			log.Printf("ratelimit %d is negative, falling back to 0", config.RateLimit)
			config.RateLimit = 0
		}

		// Redirect logs when the user supplied a dedicated log file.
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
		log.Println("listening on:", config.Listen)
		log.Println("default command:", config.Target)
		log.Println("encryption:", config.Crypt)
		log.Println("nodelay parameters:", config.NoDelay, config.Interval, config.Resend, config.NoCongestion)
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
		log.Println("pprof:", config.Pprof)
		log.Println("quiet:", config.Quiet)
		log.Println("tcp:", config.TCP)

		if config.QPP {
			if warnings, err := transport.ValidateQPPParams(config.QPPCount, config.Key); err != nil {
				log.Fatalf("%+v", err)
			} else {
				for _, w := range warnings {
					color.Red("QPP Warning: %s", w)
				}
			}
		}

		// Derive the shared session key from the pre-shared secret.
		log.Println("initiating key derivation")
		pass := pbkdf2.Key([]byte(config.Key), []byte(SALT), 4096, 32, sha1.New)
		log.Println("key derivation done")
		block, effectiveCrypt := transport.SelectBlockCrypt(config.Crypt, pass)
		config.Crypt = effectiveCrypt

		// Start the SNMP logger if the feature is enabled.
		go transport.SnmpLogger(config.SnmpLog, config.SnmpPeriod)

		// Start the pprof server if the feature is enabled.
		if config.Pprof {
			go http.ListenAndServe(":6060", nil)
		}

		// Instantiate a shared QPP pad if the feature is enabled.
		var _Q_ *qpp.QuantumPermutationPad
		if config.QPP {
			_Q_ = qpp.NewQPP([]byte(config.Key), uint16(config.QPPCount))
		}

		// Spawn an accept loop per listener and track each goroutine via WaitGroup.
		var wg sync.WaitGroup
		// loop accepts new KCP conversations on the provided listener and hands
		// each of them to handleSession in its own goroutine.
		loop := func(lis *kcp.Listener) {
			defer wg.Done()
			if err := lis.SetDSCP(config.DSCP); err != nil {
				log.Println("SetDSCP:", err)
			}
			if err := lis.SetReadBuffer(config.SockBuf); err != nil {
				log.Println("SetReadBuffer:", err)
			}
			if err := lis.SetWriteBuffer(config.SockBuf); err != nil {
				log.Println("SetWriteBuffer:", err)
			}

			for {
				if conn, err := lis.AcceptKCP(); err == nil {
					log.Println("remote address:", conn.RemoteAddr())
					conn.SetStreamMode(true)
					conn.SetWriteDelay(false)
					conn.SetNoDelay(config.NoDelay, config.Interval, config.Resend, config.NoCongestion)
					conn.SetMtu(config.MTU)
					conn.SetWindowSize(config.SndWnd, config.RcvWnd)
					conn.SetACKNoDelay(config.AckNodelay)
					conn.SetRateLimit(uint32(config.RateLimit))

					if config.NoComp {
						go handleSession(_Q_, []byte(config.Key), conn, &config)
					} else {
						go handleSession(_Q_, []byte(config.Key), transport.NewCompStream(conn), &config)
					}
				} else {
					log.Printf("%+v", err)
				}
			}
		}

		// Parse the listen address which may contain a port range.
		mp, err := transport.ParseMultiPort(config.Listen)
		if err != nil {
			log.Println(err)
			return err
		}

		// Create one listener per port inside the configured range, delegating
		// the tcpraw-vs-UDP choice to the platform-specific listen().
		for _, port := range mp.Ports() {
			portConfig := config
			portConfig.Listen = fmt.Sprintf("%v:%v", mp.Host, port)
			proto := "udp"
			if config.TCP {
				proto = "tcp"
			}
			log.Printf("Listening on: %v/%v", portConfig.Listen, proto)
			lis, err := listen(&portConfig, block)
			checkError(err)
			wg.Add(1)
			go loop(lis)
		}

		wg.Wait()
		return nil
	}
	myApp.Run(os.Args)
}

// handleSession negotiates a remote-shell session over a single transport
// connection: it reads the client's handshake (the command line to run, if
// any), spawns that command, bridges the connection onto the mux core's
// special channels and the child's stdin/stdout/stderr/exit-status, and
// runs the session until either side closes.
func handleSession(_Q_ *qpp.QuantumPermutationPad, seed []byte, conn net.Conn, config *Config) {
	logln := func(v ...any) {
		if !config.Quiet {
			log.Println(v...)
		}
	}

	var wire io.ReadWriteCloser = conn
	if _Q_ != nil {
		wire = transport.NewQPPPort(conn, _Q_, seed)
	}

	transport.ActiveSessions.Add(1)
	defer transport.ActiveSessions.Add(-1)

	logln("session opened", "in:", conn.RemoteAddr())
	defer logln("session closed", "in:", conn.RemoteAddr())

	hsMsg, err := mux.ReadMsg(wire)
	if err != nil {
		logln("handshake:", err)
		conn.Close()
		return
	}
	payload, err := mux.DecodeHandshake(hsMsg)
	if err != nil {
		logln("handshake:", err)
		conn.Close()
		return
	}
	command := strings.TrimSpace(string(payload))
	if command == "" {
		command = config.Target
	}

	cmd := exec.Command("/bin/sh", "-c", command)

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		logln(err)
		conn.Close()
		return
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		logln(err)
		conn.Close()
		return
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		logln(err)
		conn.Close()
		return
	}
	exitR, exitW, err := os.Pipe()
	if err != nil {
		logln(err)
		conn.Close()
		return
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		logln("exec:", err)
		conn.Close()
		return
	}
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	go func() {
		err := cmd.Wait()
		code := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else if err != nil {
			code = -1
		}
		exitW.Write([]byte{byte(code)})
		exitW.Close()
	}()

	bridge, err := transport.NewBridge(wire)
	if err != nil {
		logln("bridge:", err)
		conn.Close()
		return
	}

	sessCfg, err := transport.BuildSessionConfig(uint32(config.MaxOutgoingMsg))
	if err != nil {
		logln(err)
		conn.Close()
		return
	}

	fds := mux.ShellFDs{
		Stdin:  int(stdinW.Fd()),
		Stdout: int(stdoutR.Fd()),
		Stderr: int(stderrR.Fd()),
		Exit:   int(exitR.Fd()),
	}
	// On the server, stdin is ToFD (written to the child); the rest read
	// from the child and flow out as DATA.
	serverFromFD := func(ch int) bool { return ch != mux.ChStdin }

	session, err := mux.NewShellSession(int(bridge.FromPeer.Fd()), int(bridge.ToPeer.Fd()), fds, serverFromFD, sessCfg, 1<<20)
	if err != nil {
		logln(err)
		conn.Close()
		return
	}

	if err := session.Run(); err != nil {
		logln("session:", err)
	}

	if config.CloseWait > 0 {
		time.Sleep(time.Duration(config.CloseWait) * time.Second)
	}
	bridge.FromPeer.Close()
	bridge.ToPeer.Close()
	conn.Close()
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", errors.WithStack(err))
		os.Exit(-1)
	}
}
