package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	. "github.com/heluDuyne/lingolab/apps/api/echo"
	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/services/email"
	"github.com/heluDuyne/lingolab/services/metrics"
	"github.com/heluDuyne/lingolab/services/upload"
	"github.com/heluDuyne/lingolab/storage/database/sqlx"
	"github.com/heluDuyne/lingolab/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type app struct {
	server  *Server
	conf    *core.Config
	reg     *attempt.Registry
	mailSvc *emailsvc.ConsoleService
	media   *upload.DiskStore
	logger  *testutil.Logger
}

func setup(t *testing.T) *app {
	t.Helper()
	conf := testutil.NewConfig(t)
	conf.Server.ReviewerEmails = []string{"reviewer@lingolab.test"}
	db := testutil.OpenDB(t, conf)

	logger := testutil.NewLogger()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	reg := attempt.NewRegistry(sqlxrepos.NewAttemptStore(db), mailSvc, conf)
	media, err := upload.NewDiskStore(conf.Media, logger)
	if err != nil {
		t.Fatalf("upload.NewDiskStore() failed: %v", err)
	}
	promReg := prometheus.NewRegistry()

	return &app{
		server: NewServer(ServerDeps{
			Conf:           conf,
			Logger:         logger,
			Registry:       reg,
			Media:          media,
			Metrics:        metrics.New(promReg),
			Gatherer:       promReg,
			DisableReqLogs: true,
		}),
		conf:    conf,
		reg:     reg,
		mailSvc: mailSvc,
		media:   media,
		logger:  logger,
	}
}

func (a *app) token(t *testing.T, subject, role string) string {
	t.Helper()
	token, err := GenerateToken(a.conf, NewClaims(a.conf, subject, role))
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	return token
}

func (a *app) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}
