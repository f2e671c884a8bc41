package tilectl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/pterm/pterm"

	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract/contractstub"
	"github.com/louisbranch/tileduel/internal/services/gateway/keystore/sqlite"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
	"github.com/louisbranch/tileduel/internal/services/gateway/near/neartest"
	"github.com/louisbranch/tileduel/internal/services/gateway/session/sessiontest"
)

// signedInKeystore signs alice in through a SQLite store at a temp path and
// points tilectl's environment at node.
func signedInKeystore(t *testing.T, node *neartest.Node) string {
	t.Helper()
	pterm.DisableColor()
	path := filepath.Join(t.TempDir(), "keys.db")
	store, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	node.SetAccount("alice.testnet", neartest.Account{Amount: sdkmath.NewIntWithDecimal(3, near.NominationExp)})
	manager := sessiontest.New(t, node, store)
	sessiontest.SignIn(t, node, manager, "alice.testnet")
	if err := manager.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	t.Setenv("TILEDUEL_NODE_URL", node.URL())
	t.Setenv("TILEDUEL_NETWORK", "testnet")
	t.Setenv("TILEDUEL_KEYSTORE_PATH", path)
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, err := NewRootCommand()
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusShowsSignedInAccount(t *testing.T) {
	node := neartest.NewNode(t)
	signedInKeystore(t, node)

	out, err := execute(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"testnet", sessiontest.ContractID, "matched", "alice.testnet"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestBalance(t *testing.T) {
	node := neartest.NewNode(t)
	signedInKeystore(t, node)

	out, err := execute(t, "balance")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !strings.Contains(out, "2.95 NEAR available") {
		t.Fatalf("balance output:\n%s", out)
	}
}

func TestTilesAndPlayers(t *testing.T) {
	node := neartest.NewNode(t)
	stub := contractstub.New()
	node.Deploy(sessiontest.ContractID, stub)
	signedInKeystore(t, node)
	stub.SetTiles("alice.testnet", contract.SolvedTiles)

	out, err := execute(t, "tiles", "alice.testnet")
	if err != nil {
		t.Fatalf("tiles: %v", err)
	}
	if !strings.Contains(out, "15") || !strings.Contains(out, "solved") {
		t.Fatalf("tiles output:\n%s", out)
	}

	out, err = execute(t, "players")
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if !strings.Contains(out, "stake (NEAR)") {
		t.Fatalf("players output:\n%s", out)
	}
}

func TestProfileFlagGatesMatchedViews(t *testing.T) {
	node := neartest.NewNode(t)
	node.Deploy(sessiontest.ContractID, contractstub.New())
	signedInKeystore(t, node)

	_, err := execute(t, "players", "--profile", "solo")
	if err == nil || !strings.Contains(err.Error(), "solo") {
		t.Fatalf("err = %v", err)
	}
}

func TestBoardLayout(t *testing.T) {
	data := board(contract.SolvedTiles)
	if len(data) != 4 || data[0][0] != "1" || data[3][2] != "15" || data[3][3] != "" {
		t.Fatalf("board = %v", data)
	}
}
