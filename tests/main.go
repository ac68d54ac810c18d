package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/Nystya/txgroup/config"
	"github.com/Nystya/txgroup/logger"
	"github.com/Nystya/txgroup/repository/messaging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manual smoke run against a node started with main.go. The node's admin
// address coordinates the groups; every peer hosts one "log" unit per group.
func main() {
	cfg := config.NewConfig()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	rpcClient := messaging.NewGRPCClient(&messaging.GRPCClientConfig{Timeout: cfg.NotifyTimeout}, log)
	defer rpcClient.Close()

	for _, peer := range cfg.PeerList {
		if err := rpcClient.Ping(context.Background(), peer); err != nil {
			log.Fatal("Peer is not reachable", zap.String("peer", peer), zap.Error(err))
		}
	}

	coordinator := "http://" + cfg.AdminAddr
	if strings.HasPrefix(cfg.AdminAddr, ":") {
		coordinator = "http://127.0.0.1" + cfg.AdminAddr
	}

	input := bufio.NewScanner(os.Stdin)

	log.Info("This test will commit one group and roll back another, one unit per peer.")
	log.Info("Stop a peer in between to see communication failures recorded.")

	log.Info("Press enter to commit")
	input.Scan()
	run(coordinator, cfg.PeerList, "commit")

	log.Info("Press enter to roll back")
	input.Scan()
	run(coordinator, cfg.PeerList, "rollback")
}

func call(method, url, body string) (int, string, error) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		return 0, "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)

	return resp.StatusCode, string(data), err
}

func run(coordinator string, peers []string, outcome string) {
	groupURL := coordinator + "/groups/" + uuid.New().String()

	if status, body, err := call(http.MethodPost, groupURL, ""); err != nil || status != http.StatusCreated {
		fmt.Printf("Could not begin %v :: %v %v %v\n", groupURL, status, body, err)
		return
	}
	defer call(http.MethodDelete, groupURL, "")

	for i, peer := range peers {
		unit := fmt.Sprintf(`{"unitId":"unit-%d","unitType":"log","remoteKey":%q}`, i, peer)
		if status, body, err := call(http.MethodPost, groupURL+"/units", unit); err != nil || status != http.StatusNoContent {
			fmt.Printf("Could not join unit-%d :: %v %v %v\n", i, status, body, err)
		}
	}

	status, body, err := call(http.MethodPost, groupURL+"/"+outcome, "")
	if err != nil || status != http.StatusOK {
		fmt.Printf("Could not %v %v :: %v %v %v\n", outcome, groupURL, status, body, err)
		return
	}

	fmt.Printf("Group finished: %v\n", body)
}
