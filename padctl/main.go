package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"github.com/s0sococo/collaborative-text-editor/collab"
)

const PadCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Collaborative pad control.

Credentials come from the environment or a .env file:
    LIVEKIT_API_KEY, LIVEKIT_API_SECRET
    LIVEKIT_ADMIN_KEY, LIVEKIT_ADMIN_SECRET (default to the api pair)

Usage:
    padctl mint-token --identity=<identity> --room=<room> [--admin] [--verbose]
    padctl create-room --url=<url> --room=<room> [--verbose]
    padctl join --url=<url> --room=<room> --identity=<identity>
        [--token=<token>] [--create] [--verbose]
    padctl edit [--verbose]

Options:
    -h --help              Show this screen.
    --version              Show version.
    --url=<url>            Room service host, e.g. ws://localhost:7880.
    --room=<room>          Room name.
    --identity=<identity>  Participant identity.
    --token=<token>        Use this token instead of minting one.
    --admin                Mint the short-lived room-admin token.
    --create               Create the room before joining.
    -v --verbose           Verbose logging.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], PadCtlVersion)
	if err != nil {
		panic(err)
	}

	initGlog(opts)

	if mintToken_, _ := opts.Bool("mint-token"); mintToken_ {
		mintToken(opts)
	} else if createRoom_, _ := opts.Bool("create-room"); createRoom_ {
		createRoom(opts)
	} else if join_, _ := opts.Bool("join"); join_ {
		join(opts)
	} else if edit_, _ := opts.Bool("edit"); edit_ {
		edit(opts)
	}
}

func initGlog(opts docopt.Opts) {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	if verbose, _ := opts.Bool("--verbose"); verbose {
		flag.Set("v", "2")
	} else {
		flag.Set("v", "0")
	}
	// docopt owns os.Args; just mark the flag set parsed for glog
	flag.CommandLine.Parse([]string{})
}

func requireConfig() *collab.Config {
	config, err := collab.LoadConfig()
	if err != nil {
		Err.Fatalf("%s", err)
	}
	return config
}

// like the deploy tools, allow the secret to be typed instead of stored
func promptSecret(prompt string) string {
	fmt.Print(prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		Err.Fatalf("read secret: %s", err)
	}
	return string(secret)
}

func mintToken(opts docopt.Opts) {
	identity, _ := opts.String("--identity")
	room, _ := opts.String("--room")
	admin, _ := opts.Bool("--admin")

	config, err := collab.LoadConfig()
	if err != nil {
		// allow interactive use without stored credentials
		Err.Printf("%s", err)
		config = &collab.Config{}
		fmt.Print("api key: ")
		fmt.Scanln(&config.ApiKey)
		config.ApiSecret = promptSecret("api secret: ")
		config.AdminKey = config.ApiKey
		config.AdminSecret = config.ApiSecret
	}

	var token string
	if admin {
		token, err = collab.AdminToken(config.AdminKey, config.AdminSecret, room)
	} else {
		token, err = collab.ParticipantToken(config.ApiKey, config.ApiSecret, identity, room)
	}
	if err != nil {
		Err.Fatalf("%s", err)
	}
	Out.Printf("%s", token)
}

func createRoom(opts docopt.Opts) {
	url, _ := opts.String("--url")
	room, _ := opts.String("--room")

	config := requireConfig()

	roomApi := collab.NewRoomApi(url, config.AdminKey, config.AdminSecret)
	defer roomApi.Close()

	result, err := roomApi.CreateRoomSync(&collab.CreateRoomArgs{Name: room})
	if err != nil {
		// the room may already exist. Reportable, not fatal.
		Err.Printf("create room: %s", err)
		return
	}
	Out.Printf("created room %s", result.Name)
}

func join(opts docopt.Opts) {
	url, _ := opts.String("--url")
	room, _ := opts.String("--room")
	identity, _ := opts.String("--identity")
	create, _ := opts.Bool("--create")

	config := requireConfig()

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventLog := collab.NewEventLog()
	tokenSlot := collab.NewTokenSlot()
	sessionManager := collab.NewSessionManager(cancelCtx, eventLog)
	defer sessionManager.Close()

	if create {
		roomApi := collab.NewRoomApiWithContext(cancelCtx, url, config.AdminKey, config.AdminSecret)
		defer roomApi.Close()
		roomApi.CreateRoom(&collab.CreateRoomArgs{Name: room}, collab.NewApiCallback(
			func(result *collab.CreateRoomResult, err error) {
				if err != nil {
					eventLog.Append("create room: %s", err)
				} else {
					eventLog.Append("room %s ready", room)
				}
			},
		))
	}

	// mint off the poll loop and hand the token over through the slot
	go func() {
		token, tokenErr := opts.String("--token")
		if tokenErr != nil || token == "" {
			var err error
			token, err = collab.ParticipantToken(config.ApiKey, config.ApiSecret, identity, room)
			if err != nil {
				eventLog.Append("%s", err)
				return
			}
		}
		tokenSlot.Put(token)
	}()

	backend := collab.NewCrdtBackend()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// the poll loop: one tick per frame. Take-if-present token handoff,
	// drain events, apply inbound remote ops.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case payload := <-sessionManager.Receive():
			update, err := backend.ApplyRemote(payload)
			if err != nil {
				eventLog.Append("%s", err)
			} else if update.FullText != nil {
				Out.Printf("document: %s", *update.FullText)
			}
		case <-ticker.C:
			if token, ok := tokenSlot.Take(); ok {
				sessionManager.StartSession(url, token)
			}
			for _, entry := range sessionManager.DrainEvents() {
				Out.Printf("%s", entry)
			}
			switch sessionManager.State() {
			case collab.SessionClosed, collab.SessionFailed:
				return
			}
		}
	}
}

// a local editing loop against the crdt backend. Commands:
//
//	i <pos> <text>    insert
//	d <start> <end>   delete [start, end)
//	m <pos>           move cursor
//	r <text>          replace all
//	q                 quit
func edit(opts docopt.Opts) {
	backend := collab.NewCrdtBackend()
	scanner := bufio.NewScanner(os.Stdin)

	Out.Printf("site %s", backend.SiteId())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 3)

		var intent collab.Intent
		switch parts[0] {
		case "i":
			if len(parts) < 3 {
				Err.Printf("usage: i <pos> <text>")
				continue
			}
			pos, err := strconv.Atoi(parts[1])
			if err != nil {
				Err.Printf("bad pos: %s", parts[1])
				continue
			}
			intent = collab.InsertAt{Pos: pos, Text: parts[2]}
		case "d":
			if len(parts) < 3 {
				Err.Printf("usage: d <start> <end>")
				continue
			}
			start, err0 := strconv.Atoi(parts[1])
			end, err1 := strconv.Atoi(parts[2])
			if err0 != nil || err1 != nil {
				Err.Printf("bad range: %s %s", parts[1], parts[2])
				continue
			}
			intent = collab.DeleteRange{Start: start, End: end}
		case "m":
			if len(parts) < 2 {
				Err.Printf("usage: m <pos>")
				continue
			}
			pos, err := strconv.Atoi(parts[1])
			if err != nil {
				Err.Printf("bad pos: %s", parts[1])
				continue
			}
			intent = collab.MoveCursor{Pos: pos}
		case "r":
			text := ""
			if 1 < len(parts) {
				text = strings.Join(parts[1:], " ")
			}
			intent = collab.ReplaceAll{Text: text}
		case "q":
			return
		default:
			Err.Printf("unknown command: %s", parts[0])
			continue
		}

		update := backend.ApplyIntent(intent)
		if update.FullText != nil {
			Out.Printf("%q cursor=%d", *update.FullText, backend.Cursor())
		} else {
			Out.Printf("cursor=%d", backend.Cursor())
		}
	}
}
