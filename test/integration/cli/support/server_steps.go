package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// theMeterServerIsRunningWithReading starts the in-process server whose
// stub engine answers text.
func (testCtx *TestContext) theMeterServerIsRunningWithReading(text string) error {
	return testCtx.createTestHTTPServer(text, 10)
}

func (testCtx *TestContext) theMeterServerIsRunningWithUploadLimit(mb int) error {
	return testCtx.createTestHTTPServer("", int64(mb))
}

// iStartTheServerWith runs the real binary.
func (testCtx *TestContext) iStartTheServerWith(flags string) error {
	return testCtx.StartServer(flags)
}

// iStopTheServer sends SIGTERM and expects a clean exit.
func (testCtx *TestContext) iStopTheServer() error {
	if testCtx.ServerProcess == nil {
		return errors.New("no server process running")
	}
	return testCtx.StopServerProcess()
}

// do sends a request and records status, body and headers.
func (testCtx *TestContext) do(req *http.Request) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		testCtx.LastHTTPHeaders[key] = resp.Header.Get(key)
	}
	return nil
}

// iRequest sends a bodiless request such as GET /health.
func (testCtx *TestContext) iRequest(method, path string) error {
	req, err := http.NewRequest(method, testCtx.GetServerURL()+path, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

// iUpload posts a scenario photo as the "image" form field with optional
// extra fields given as key=value pairs separated by '&'.
func (testCtx *TestContext) iUpload(name, path, fields string) error {
	data, err := os.ReadFile(testCtx.Path(name)) //nolint:gosec // G304: Test file reading with controlled path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return testCtx.postMultipart(path, filepath.Base(name), data, fields)
}

func (testCtx *TestContext) iUploadWithoutFields(name, path string) error {
	return testCtx.iUpload(name, path, "")
}

// iUploadGarbage posts bytes that are not an image.
func (testCtx *TestContext) iUploadGarbage(path string) error {
	return testCtx.postMultipart(path, "broken.jpg", []byte("this is not an image"), "")
}

func (testCtx *TestContext) postMultipart(path, filename string, data []byte, fields string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for pair := range strings.SplitSeq(fields, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, testCtx.GetServerURL()+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldBeValidJSON() error {
	var js json.RawMessage
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &js); err != nil {
		return fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseFieldShouldBe compares a dotted JSON path in the response.
func (testCtx *TestContext) theResponseFieldShouldBe(field, expected string) error {
	var data any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	val, err := lookupField(data, field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(val); got != expected {
		return fmt.Errorf("response field '%s' is %q, expected %q", field, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != expected {
		return fmt.Errorf("header %s is %q, expected %q", name, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldContain(name, text string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; !strings.Contains(got, text) {
		return fmt.Errorf("header %s is %q, expected it to contain %q", name, got, text)
	}
	return nil
}

// RegisterServerSteps registers server lifecycle and HTTP steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the meter server is running with reading "([^"]*)"$`, testCtx.theMeterServerIsRunningWithReading)
	sc.Step(`^the meter server is running with an upload limit of (\d+) MB$`, testCtx.theMeterServerIsRunningWithUploadLimit)
	sc.Step(`^I start the server with "([^"]*)"$`, testCtx.iStartTheServerWith)
	sc.Step(`^I stop the server$`, testCtx.iStopTheServer)

	sc.Step(`^I send (GET|POST|PUT|DELETE|OPTIONS) "([^"]*)"$`, testCtx.iRequest)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadWithoutFields)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with "([^"]*)"$`, testCtx.iUpload)
	sc.Step(`^I upload an invalid file to "([^"]*)"$`, testCtx.iUploadGarbage)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response should be valid JSON$`, testCtx.theResponseShouldBeValidJSON)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response header "([^"]*)" should contain "([^"]*)"$`, testCtx.theResponseHeaderShouldContain)
}
