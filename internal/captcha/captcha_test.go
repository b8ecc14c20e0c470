package captcha

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
)

func TestSolverFunc(t *testing.T) {
	var s Solver = SolverFunc(func(_ context.Context, image []byte) (string, error) {
		return string(image) + "!", nil
	})
	got, err := s.Solve(context.Background(), []byte("ab"))
	if err != nil || got != "ab!" {
		t.Fatalf("got %q %v", got, err)
	}
}

func TestHTTPSolver(t *testing.T) {
	var uploaded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("img")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		uploaded, _ = io.ReadAll(f)
		if string(uploaded) == "blank" {
			_, _ = w.Write([]byte(`{"data":{"words":""}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"words":" K7QX "}}`))
	}))
	defer srv.Close()

	s := &HTTPSolver{Client: resty.New(), Endpoint: srv.URL, Field: "img", ResultPath: "data.words"}
	got, err := s.Solve(context.Background(), []byte("png-bytes"))
	if err != nil || got != "K7QX" {
		t.Fatalf("got %q %v", got, err)
	}
	if string(uploaded) != "png-bytes" {
		t.Fatalf("server received %q", uploaded)
	}

	if _, err := s.Solve(context.Background(), []byte("blank")); !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("expected ErrUnrecognized, got %v", err)
	}
}
