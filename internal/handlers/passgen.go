package handlers

import (
	"net/http"
	"strconv"

	pkghttp "github.com/vaultkeeper/vaultd/pkg/http"
	"github.com/vaultkeeper/vaultd/pkg/passgen"
)

const defaultGeneratedLength = 16

// PassgenHandler serves random password generation.
type PassgenHandler struct{}

func NewPassgenHandler() *PassgenHandler {
	return &PassgenHandler{}
}

type GeneratedPasswordResponse struct {
	Password string `json:"password"`
	Length   int    `json:"length"`
}

// Generate returns a random password. The length query parameter is
// optional and bounded by the generator itself.
func (h *PassgenHandler) Generate(w http.ResponseWriter, r *http.Request) {
	length := defaultGeneratedLength
	if raw := r.URL.Query().Get("length"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "length must be an integer")
			return
		}
		length = parsed
	}

	password, err := passgen.Generate(length)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, GeneratedPasswordResponse{
		Password: password,
		Length:   len(password),
	})
}
