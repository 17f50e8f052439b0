package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/telemotion/armrec/internal/httpc"
	"github.com/telemotion/armrec/internal/log"
)

// watch tails a running armrec daemon's websocket streams and prints
// each message to stdout, one JSON object per line. With -once it
// fetches a single snapshot over plain HTTP instead.
func main() {
	host := flag.String("host", "localhost:8090", "armrec daemon host:port")
	feed := flag.Bool("feed", false, "Tail the activity feed instead of status snapshots")
	once := flag.Bool("once", false, "Print one snapshot and exit instead of streaming")
	pretty := flag.Bool("pretty", false, "Indent the JSON output")
	flag.Parse()

	log.Init("info")

	if *once {
		if err := fetchOnce(*host, *feed, *pretty); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	path := "/ws/status"
	if *feed {
		path = "/ws/feed"
	}
	url := fmt.Sprintf("ws://%s%s", *host, path)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", url, err)
		os.Exit(1)
	}
	defer conn.Close()
	log.Info("connected", "url", url)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fmt.Println(render(data, *pretty))
	}
}

// fetchOnce hits the daemon's REST surface for a single snapshot.
func fetchOnce(host string, feed, pretty bool) error {
	path := "/api/status"
	if feed {
		path = "/api/feed"
	}
	url := fmt.Sprintf("http://%s%s", host, path)

	resp, err := httpc.Client.Get(url)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("get %s: status %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	fmt.Println(render(data, pretty))
	return nil
}

func render(data []byte, pretty bool) string {
	if pretty {
		var v interface{}
		if json.Unmarshal(data, &v) == nil {
			if out, err := json.MarshalIndent(v, "", "  "); err == nil {
				return string(out)
			}
		}
	}
	return string(data)
}
