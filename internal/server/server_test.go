//nolint:all
package server_test

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/andrei-cloud/anet"

	"github.com/andrei-cloud/emv_studio/internal/calculator"
	server "github.com/andrei-cloud/emv_studio/internal/server"
)

const testAddr = "127.0.0.1:1601"

// startTestServer starts the calculator server for testing.
func startTestServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(testAddr, calculator.NewDefaultRegistry(nil, 4))
	if err != nil {
		t.Fatalf("failed to initialize server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			t.Fatalf("server start error: %v", err)
		}
	case <-time.After(1 * time.Second):
		// Allow some time for the server to start
	}

	time.Sleep(100 * time.Millisecond)

	return srv
}

// TestServer runs the scenarios sequentially against one listener.
func TestServer(t *testing.T) {
	srv := startTestServer(t)
	defer srv.Stop()

	t.Run("single", testSingleRequest)
	t.Run("batch", testBatchRequest)
	t.Run("malformed", testMalformedRequest)
}

func testSingleRequest(t *testing.T) {
	client := server.Dial(testAddr, 2*time.Second)
	defer client.Close()

	res, err := client.Execute(calculator.Input{
		Calculator: "keys",
		Operation:  "KCV",
		Params:     map[string]string{"key": "0123456789ABCDEFFEDCBA9876543210"},
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.Data["kcv"] != "08D7B4" {
		t.Fatalf("unexpected kcv: got %s, want %s", res.Data["kcv"], "08D7B4")
	}
}

func testBatchRequest(t *testing.T) {
	client := server.Dial(testAddr, 2*time.Second)
	defer client.Close()

	results, err := client.ExecuteBatch([]calculator.Input{
		{Calculator: "keys", Operation: "KCV", Params: map[string]string{"key": "0123456789ABCDEF"}},
		{Calculator: "unknown", Operation: "KCV"},
	})
	if err != nil {
		t.Fatalf("batch request failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("unexpected result count: got %d, want 2", len(results))
	}
	if results[0].Data["kcv"] != "D5D44F" {
		t.Fatalf("unexpected kcv: got %s, want %s", results[0].Data["kcv"], "D5D44F")
	}
	if results[1].Success || results[1].Code != "E06" {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
}

func testMalformedRequest(t *testing.T) {
	factory := func(addr string) (anet.PoolItem, error) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err != nil {
			return nil, err
		}

		if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
			conn.Close()

			return nil, err
		}

		return conn, nil
	}

	pool := anet.NewPool(1, factory, testAddr, nil)
	defer pool.Close()

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()
	defer broker.Close()

	req := []byte("{not json")
	resp, err := broker.Send(&req)
	if err != nil {
		t.Fatalf("malformed request failed: %v", err)
	}

	var res calculator.Result
	if err := json.Unmarshal(resp, &res); err != nil {
		t.Fatalf("response is not a result: %v", err)
	}
	if res.Success || res.Code != "E09" {
		t.Fatalf("unexpected response: %+v", res)
	}
}
