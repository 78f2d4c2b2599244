package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// command mirrors internal/adapter.Command's wire shape; kept local so the
// client has no dependency on the server's internal package.
type command struct {
	Type       string `json:"type"`
	User       string `json:"user"`
	Product    string `json:"product,omitempty"`
	Side       string `json:"side,omitempty"`
	PriceCents int64  `json:"price_cents,omitempty"`
	IsMarket   bool   `json:"is_market,omitempty"`
	Volume     uint64 `json:"volume,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
}

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner username (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'depth', 'state']")

	ticker := flag.String("ticker", "AAPL", "Ticker symbol")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	priceFlag := flag.Float64("price", 100.0, "Limit price in dollars")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")
	orderID := flag.String("order-id", "", "Order id to cancel")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	enc := json.NewEncoder(conn)
	if err := enc.Encode(command{Type: "connect", User: *owner}); err != nil {
		log.Fatalf("Failed to send connect: %v", err)
	}

	go readResponses(conn)

	side := strings.ToUpper(*sideStr)
	isMarket := strings.ToLower(*typeStr) == "market"
	cents := int64(math.Round(*priceFlag * 100))

	switch strings.ToLower(*action) {
	case "place":
		for _, q := range parseQuantities(*qtyStr) {
			cmd := command{
				Type:       "submit_order",
				User:       *owner,
				Product:    *ticker,
				Side:       side,
				PriceCents: cents,
				IsMarket:   isMarket,
				Volume:     q,
			}
			if err := enc.Encode(cmd); err != nil {
				log.Printf("Failed to place order (qty %d): %v", q, err)
			} else {
				fmt.Printf("-> Sent %s order: %s %d @ %.2f\n", side, *ticker, q, *priceFlag)
			}
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == "" {
			log.Fatal("Error: -order-id is required for cancellation")
		}
		cmd := command{Type: "submit_order_cancel", User: *owner, Product: *ticker, Side: side, OrderID: *orderID}
		if err := enc.Encode(cmd); err != nil {
			log.Printf("Failed to send cancel: %v", err)
		} else {
			fmt.Printf("-> Sent cancel for order id %s\n", *orderID)
		}

	case "depth":
		if err := enc.Encode(command{Type: "get_book_depth", User: *owner, Product: *ticker}); err != nil {
			log.Printf("Failed to request depth: %v", err)
		}

	case "state":
		if err := enc.Encode(command{Type: "get_market_state", User: *owner}); err != nil {
			log.Printf("Failed to request market state: %v", err)
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for responses... (Press Ctrl+C to exit)")
	select {}
}

// parseQuantities splits a comma-separated string into a slice of uint64.
func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: invalid quantity %q, skipping.", p)
		}
	}
	return result
}

// readResponses prints every JSON-lines response and pushed event the
// server writes back.
func readResponses(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var raw map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &raw); err != nil {
			log.Printf("malformed response: %v", err)
			continue
		}
		fmt.Printf("\n[RECV] %v\n", raw)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("connection lost: %v", err)
	}
	os.Exit(0)
}
