package querytest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teranos/focuspuller/query"
)

// SearchPageHTML is a small search page for browser driver tests.
//
// #safe is an unchecked checkbox. The #results list renders 200ms after #go is clicked, and #spinner is
// removed at the same moment.
const SearchPageHTML = `<!doctype html>
<html>
<head><title>Search</title></head>
<body>
  <h1 class="title main">Search</h1>
  <form onsubmit="return false">
    <input id="q" name="q" type="text">
    <button id="go" type="button">Go</button>
    <button id="off" type="button" disabled>Off</button>
    <label><input id="safe" name="safe" type="checkbox"> Safe search</label>
  </form>
  <a href="/next" data-role="nav">Next page</a>
  <div id="hidden" style="display:none">Hidden</div>
  <div id="spinner">Loading</div>
  <ul id="results"></ul>
  <script>
    document.getElementById("go").addEventListener("click", () => {
      const q = document.getElementById("q").value;
      setTimeout(() => {
        document.getElementById("spinner").remove();
        const li = document.createElement("li");
        li.className = "result";
        li.textContent = "Result for " + q;
        document.getElementById("results").appendChild(li);
      }, 200);
    });
  </script>
</body>
</html>`

// NextPageHTML is served at /next.
const NextPageHTML = `<!doctype html>
<html><head><title>Next</title></head><body><p id="arrived">Arrived</p></body></html>`

// NewSearchServer serves SearchPageHTML at / and NextPageHTML at /next.
func NewSearchServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(SearchPageHTML))
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(NextPageHTML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// SearchPageFixture describes SearchPageHTML for TestSessionContract.
func SearchPageFixture() Fixture {
	return Fixture{
		Present:     query.CSS("h1.title"),
		PresentText: "Search",
		Missing:     query.CSS("#does-not-exist"),
		Malformed:   query.CSS("div[[["),
	}
}
