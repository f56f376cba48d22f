package chain

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed tetris.abi.json
var defaultABI []byte

// Contract method names.
const (
	methodCreateRoom      = "createRoom"
	methodJoinRoom        = "joinRoom"
	methodStartGame       = "startGame"
	methodRestartGame     = "restartGame"
	methodMovePiece       = "movePiece"
	methodRotatePiece     = "rotatePiece"
	methodHardDropPiece   = "hardDropPiece"
	methodSelectNextPiece = "selectNextPiece"
	methodUpdateGame      = "updateGame"
	methodGetActiveRooms  = "getActiveRooms"
	methodGetListPlayer   = "getListPlayer"
	methodGetLocation     = "getLocation"
	methodGetCurrentPiece = "getCurrentPiece"
	methodGetEnemyPiece   = "getEnemyPiece"
	methodGetBoard        = "getBoard"
	methodGetScore        = "getScore"
	methodGetWinner       = "getWinner"
)

var requiredMethods = []string{
	methodCreateRoom, methodJoinRoom, methodStartGame, methodMovePiece,
	methodRotatePiece, methodHardDropPiece, methodSelectNextPiece,
	methodGetActiveRooms, methodGetListPlayer, methodGetLocation,
	methodGetCurrentPiece, methodGetEnemyPiece, methodGetBoard, methodGetScore,
}

// LoadABI parses the ABI at path, or the embedded Tetris ABI when path is empty.
func LoadABI(path string) (abi.ABI, error) {
	raw := defaultABI
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("read abi: %w", err)
		}
		raw = data
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	var missing []string
	for _, name := range requiredMethods {
		if _, ok := parsed.Methods[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return abi.ABI{}, fmt.Errorf("%w: abi lacks %s", ErrBadConfig, strings.Join(missing, ", "))
	}
	return parsed, nil
}
