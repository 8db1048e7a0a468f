/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/drawbox/sketch"
)

func serveHomePage(cfg *Config, coord *sketch.Coordinator, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var body strings.Builder

		body.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		body.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		body.WriteString(`<title>drawbox</title>`)
		body.WriteString(`<style>body{font-family:sans-serif;max-width:40em;margin:2em auto;padding:0 1em;}code{background:#eee;padding:0 .2em;}</style>`)
		body.WriteString(`</head><body><h1>drawbox</h1>`)

		if code := strings.ToUpper(r.URL.Query().Get("room")); code != "" {
			if v, ok := coord.GetRoom(code); ok {
				fmt.Fprintf(&body, `<p>You have been invited to room <strong>%s</strong> (%d/%d players, %s).</p>`,
					html.EscapeString(v.ID), len(v.Members), cfg.maxPlayers, v.Status)
			} else {
				fmt.Fprintf(&body, `<p>Room <strong>%s</strong> does not exist any more.</p>`, html.EscapeString(code))
			}
		}

		fmt.Fprintf(&body, `<p>%d room(s) open. Connect a client to <code>%s/ws?name=YourName</code> and send <code>{"type":"create_room"}</code> or <code>{"type":"join_room","room":"CODE"}</code>.</p>`,
			len(coord.ListRooms()), html.EscapeString(cfg.prefix))
		body.WriteString(`</body></html>`)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(body.String()))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /rooms/
Disallow: /ws

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
