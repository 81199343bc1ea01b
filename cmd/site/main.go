package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AndrewLester/atomicdate/internal/templates"
	"github.com/AndrewLester/atomicdate/pkg/atomicdate"
)

type SyncRequest struct {
	Orig string
}

// SyncResponse carries network time stamps in milliseconds since the Unix
// epoch, so the page can run the offset calculation against this server.
type SyncResponse struct {
	Orig, Recv, Xmt string
}

func main() {
	port := os.Getenv("SITE_PORT")
	if port == "" {
		port = "8080"
	}

	host, ntpPort, err := atomicdate.DefaultServer()
	if err != nil {
		log.Fatal(err)
	}
	service, err := newService(host, ntpPort)
	if err != nil {
		log.Fatal(err)
	}
	defer service.Close()
	if err := service.SetSyncPeriod(time.Minute); err != nil {
		log.Fatal(err)
	}
	go func() {
		if err := service.Sync(context.Background()); err != nil {
			log.Printf("Initial synchronization with %s failed: %v", host, err)
		}
	}()

	http.Handle("/", indexHandler(service))
	http.Handle("/sync", syncHandler(service))

	log.Println("listening on", port)

	listenHost := os.Getenv("REPORT_HOST")
	log.Fatal(http.ListenAndServe(net.JoinHostPort(listenHost, port), nil))
}

func newService(host string, port int) (*atomicdate.Service, error) {
	service, err := atomicdate.NewService(atomicdate.Config{})
	if err != nil {
		return nil, err
	}
	if err := service.SetServerHost(host); err != nil {
		service.Close()
		return nil, err
	}
	if err := service.SetServerPort(port); err != nil {
		service.Close()
		return nil, err
	}
	return service, nil
}

func indexHandler(service *atomicdate.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, port := service.Server()
		data := map[string]string{
			"Region": strings.ToUpper(os.Getenv("FLY_REGION")),
			"Server": net.JoinHostPort(host, strconv.Itoa(port)),
		}
		if now, err := service.Now(); err == nil {
			data["Time"] = now.UTC().Format(time.RFC3339Nano)
		}

		// Set these headers to bump performance.now() precision to 5 microseconds
		headerMap := w.Header()
		headerMap.Add("Cross-Origin-Opener-Policy", "same-origin")
		headerMap.Add("Cross-Origin-Embedder-Policy", "require-corp")
		w.WriteHeader(200)

		if err := templates.TemplateExecutor.ExecuteTemplate(w, "index.tmpl.html", data); err != nil {
			log.Printf("Error rendering index: %v", err)
		}
	}
}

func syncHandler(service *atomicdate.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var syncRequest SyncRequest
		err := json.NewDecoder(r.Body).Decode(&syncRequest)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		recv, err := service.GetTime()
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, atomicdate.ErrNotSynchronized) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}

		syncResponse := SyncResponse{
			Orig: syncRequest.Orig,
			Recv: strconv.FormatInt(recv, 10),
		}

		w.Header().Set("Content-Type", "application/json")
		encoder := json.NewEncoder(w)

		xmt, err := service.GetTime()
		if err != nil {
			xmt = recv
		}
		syncResponse.Xmt = strconv.FormatInt(xmt, 10)
		encoder.Encode(syncResponse)
	}
}
