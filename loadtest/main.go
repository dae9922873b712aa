package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	pairCount = flag.Int("pairs", 250, "number of user pairs")
	msgCount  = flag.Int("messages", 20, "messages sent by each user")
	drainWait = flag.Duration("drain", 3*time.Second, "how long to wait for pushes after sending")
)

var (
	sentTotal     atomic.Int64
	receivedTotal atomic.Int64
)

type AuthResponse struct {
	Token string `json:"access_token"`
	ID    string `json:"id"`
}

type ConversationResponse struct {
	ID string `json:"id"`
}

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", *pairCount*2, *msgCount)
	start := time.Now()
	var wg sync.WaitGroup

	// We will create pairs: User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d pushed=%d",
		time.Since(start).Round(time.Millisecond), sentTotal.Load(), receivedTotal.Load())
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u%da", pairID)
	userB := fmt.Sprintf("u%db", pairID)
	pass := "password123"

	tokenA, _ := authenticate(userA, pass)
	tokenB, idB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return
	}

	convID := createConversation(tokenA, idB)
	if convID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chat(&wsWg, tokenA, convID, userA)
	go chat(&wsWg, tokenB, convID, userB)
	wsWg.Wait()
}

// authenticate registers (ignoring "already taken") and logs in.
func authenticate(username, password string) (string, string) {
	if resp, err := postJSON("/register", "", map[string]string{"username": username, "password": password}); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/login", "", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return "", ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Login Failed [%s]: status %d", username, resp.StatusCode)
		return "", ""
	}

	var data AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return "", ""
	}
	return data.Token, data.ID
}

func createConversation(token, targetID string) string {
	resp, err := postJSON("/api/conversations", token, map[string][]string{"participant_ids": {targetID}})
	if err != nil {
		log.Printf("❌ Create Chat Failed: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Create Chat Failed: status %d", resp.StatusCode)
		return ""
	}

	var data ConversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ""
	}
	return data.ID
}

// chat holds a socket open, sends messages over REST and counts the
// new_message pushes that arrive for the partner's messages.
func chat(wg *sync.WaitGroup, token, convID, user string) {
	defer wg.Done()

	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env struct {
				Type string `json:"type"`
			}
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Type == "new_message" {
				receivedTotal.Add(1)
			}
		}
	}()

	path := "/api/conversations/" + convID + "/messages"
	for i := 0; i < *msgCount; i++ {
		resp, err := postJSON(path, token, map[string]string{
			"type": "text",
			"text": fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		})
		if err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusCreated {
			sentTotal.Add(1)
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	_ = conn.SetReadDeadline(time.Now().Add(*drainWait))
	<-done
	log.Printf("✅ %s finished sending %d msgs", user, *msgCount)
}

func postJSON(endpoint, token string, data any) (*http.Response, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, *baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
