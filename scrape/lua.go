// Package scrape implements last-resort extraction of catalog data from rendered page markup.
package scrape

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/ocnaibill/crunchyroll-jellyfin/filesystem"
	"github.com/ocnaibill/crunchyroll-jellyfin/util"
	"github.com/ocnaibill/crunchyroll-jellyfin/where"
	libs "github.com/metafates/mangal-lua-libs"
	lua "github.com/yuin/gopher-lua"
)

// luaExtractor wraps a user-provided Lua script as an Extractor.
type luaExtractor struct {
	name  string
	state *lua.LState
}

func (e *luaExtractor) Name() string {
	return e.name
}

// LoadExtractors loads every Lua extractor script from the extractors
// directory. Scripts must define the ExtractSeries global function.
func LoadExtractors() ([]Extractor, error) {
	files, err := filesystem.API().ReadDir(where.Extractors())
	if err != nil {
		return nil, err
	}

	var extractors []Extractor
	for _, f := range files {
		if filepath.Ext(f.Name()) != ".lua" {
			continue
		}

		path := filepath.Join(where.Extractors(), f.Name())
		ex, err := loadExtractor(path)
		if err != nil {
			return nil, fmt.Errorf("load extractor %s: %w", f.Name(), err)
		}
		extractors = append(extractors, ex)
	}

	return extractors, nil
}

// loadExtractor initializes a Lua state with the standard scraper libraries
// preloaded and validates the script's required entry point.
func loadExtractor(path string) (Extractor, error) {
	state := lua.NewState()
	libs.Preload(state)

	if err := preCompileAndLoad(state, path); err != nil {
		return nil, err
	}

	if state.GetGlobal(constant.ExtractSeriesFn).Type() != lua.LTFunction {
		return nil, fmt.Errorf("function %s is required but not defined", constant.ExtractSeriesFn)
	}

	return &luaExtractor{name: util.FileStem(path), state: state}, nil
}

func (e *luaExtractor) ExtractSeries(html string) (*catalog.Series, error) {
	val, err := e.call(constant.ExtractSeriesFn, lua.LTTable, lua.LString(html))
	if err != nil {
		return nil, err
	}

	table := val.(*lua.LTable)
	series := &catalog.Series{Partial: true}

	series.Title = stringField(table, "title")
	series.Description = stringField(table, "description")
	if poster := stringField(table, "poster"); poster != "" {
		series.Images.PosterTall = [][]catalog.Image{{{Source: poster}}}
	}
	if year := stringField(table, "year"); year != "" {
		series.Year, _ = strconv.Atoi(year)
	}

	if series.Title == "" {
		return nil, fmt.Errorf("extractor %s returned no title", e.name)
	}
	return series, nil
}

// call executes a global Lua function safely.
func (e *luaExtractor) call(fn string, retType lua.LValueType, args ...lua.LValue) (lua.LValue, error) {
	luaFn := e.state.GetGlobal(fn)
	if luaFn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("function %s is not defined", fn)
	}

	err := e.state.CallByParam(lua.P{
		Fn:      luaFn,
		NRet:    1,
		Protect: true,
	}, args...)
	if err != nil {
		return nil, err
	}

	retval := e.state.Get(-1)
	e.state.Pop(1) // Clean stack

	if retval.Type() != retType {
		return nil, fmt.Errorf("%s returned %s, expected %s", fn, retval.Type(), retType)
	}
	return retval, nil
}

// stringField reads a string-convertible field from a Lua table, or "".
func stringField(tbl *lua.LTable, key string) string {
	val := tbl.RawGetString(key)
	if val == lua.LNil {
		return ""
	}
	return val.String()
}
