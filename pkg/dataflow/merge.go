package dataflow

type mergeParams struct {
	How      string   `json:"how"`
	On       string   `json:"on"`
	LeftOn   string   `json:"left_on"`
	RightOn  string   `json:"right_on"`
	Suffixes []string `json:"suffixes"`
}

// applyMerge joins exactly two tables. Keys are a shared column (on),
// independent per-side columns (left_on/right_on), or the positional row
// index when no keys are given. Colliding non-key column names take the
// configured suffixes, left side first.
func applyMerge(left, right *Table, config map[string]any) (*Table, error) {
	var p mergeParams
	if err := decodeConfig(config, &p); err != nil {
		return nil, err
	}

	if p.How == "" {
		p.How = "inner"
	}
	switch p.How {
	case "inner", "left", "right", "outer":
	default:
		return nil, configErrorf("invalid merge how %q", p.How)
	}

	suffixLeft, suffixRight := "_x", "_y"
	if len(p.Suffixes) == 2 {
		suffixLeft, suffixRight = p.Suffixes[0], p.Suffixes[1]
	}

	leftKey, rightKey := p.LeftOn, p.RightOn
	if p.On != "" {
		leftKey, rightKey = p.On, p.On
	}
	if (leftKey == "") != (rightKey == "") {
		return nil, configErrorf("merge requires both left_on and right_on when joining on independent keys")
	}

	byKey := leftKey != ""
	if byKey {
		if !left.HasColumn(leftKey) {
			return nil, configErrorf("merge key %q not found in left input", leftKey)
		}
		if !right.HasColumn(rightKey) {
			return nil, configErrorf("merge key %q not found in right input", rightKey)
		}
	}

	sharedKey := byKey && leftKey == rightKey

	// Output column plan. The shared join key appears once, from the left
	// side; every other collision gets suffixed.
	leftNames := map[string]bool{}
	for _, c := range left.Columns() {
		leftNames[c.Name] = true
	}
	rightNames := map[string]bool{}
	for _, c := range right.Columns() {
		rightNames[c.Name] = true
	}

	leftOut := map[string]string{}
	rightOut := map[string]string{}
	var columns []Column

	for _, c := range left.Columns() {
		name := c.Name
		if rightNames[c.Name] && !(sharedKey && c.Name == leftKey) {
			name = c.Name + suffixLeft
		}
		leftOut[c.Name] = name
		columns = append(columns, Column{Name: name, Type: c.Type})
	}
	for _, c := range right.Columns() {
		if sharedKey && c.Name == rightKey {
			continue
		}
		name := c.Name
		if leftNames[c.Name] {
			name = c.Name + suffixRight
		}
		rightOut[c.Name] = name
		columns = append(columns, Column{Name: name, Type: c.Type})
	}

	joinRow := func(leftRow, rightRow Row) Row {
		row := Row{}
		for src, dst := range leftOut {
			if leftRow != nil {
				row[dst] = leftRow[src]
			} else {
				row[dst] = nil
			}
		}
		for src, dst := range rightOut {
			if rightRow != nil {
				row[dst] = rightRow[src]
			} else {
				row[dst] = nil
			}
		}
		// A right-only row still carries the shared key value.
		if sharedKey && leftRow == nil && rightRow != nil {
			row[leftOut[leftKey]] = rightRow[rightKey]
		}
		return row
	}

	var rows []Row

	if !byKey {
		// Positional join on the row index.
		n := len(left.Rows())
		if len(right.Rows()) < n {
			n = len(right.Rows())
		}
		limit := n
		switch p.How {
		case "outer":
			limit = max(len(left.Rows()), len(right.Rows()))
		case "left":
			limit = len(left.Rows())
		case "right":
			limit = len(right.Rows())
		}
		for i := 0; i < limit; i++ {
			var leftRow, rightRow Row
			if i < len(left.Rows()) {
				leftRow = left.Row(i)
			}
			if i < len(right.Rows()) {
				rightRow = right.Row(i)
			}
			rows = append(rows, joinRow(leftRow, rightRow))
		}
		return NewTable(columns, rows), nil
	}

	rightIndex := map[string][]int{}
	for i, row := range right.Rows() {
		key := toString(row[rightKey])
		rightIndex[key] = append(rightIndex[key], i)
	}
	matchedRight := make([]bool, len(right.Rows()))

	appendLeftSide := func(keepUnmatched bool) {
		for _, leftRow := range left.Rows() {
			matches := rightIndex[toString(leftRow[leftKey])]
			if len(matches) == 0 {
				if keepUnmatched {
					rows = append(rows, joinRow(leftRow, nil))
				}
				continue
			}
			for _, ri := range matches {
				matchedRight[ri] = true
				rows = append(rows, joinRow(leftRow, right.Row(ri)))
			}
		}
	}

	switch p.How {
	case "inner":
		appendLeftSide(false)
	case "left":
		appendLeftSide(true)
	case "outer":
		appendLeftSide(true)
		for i, rightRow := range right.Rows() {
			if !matchedRight[i] {
				rows = append(rows, joinRow(nil, rightRow))
			}
		}
	case "right":
		// Right joins preserve right-side row order.
		leftIndex := map[string][]int{}
		for i, row := range left.Rows() {
			leftIndex[toString(row[leftKey])] = append(leftIndex[toString(row[leftKey])], i)
		}
		for _, rightRow := range right.Rows() {
			matches := leftIndex[toString(rightRow[rightKey])]
			if len(matches) == 0 {
				rows = append(rows, joinRow(nil, rightRow))
				continue
			}
			for _, li := range matches {
				rows = append(rows, joinRow(left.Row(li), rightRow))
			}
		}
	}

	return NewTable(columns, rows), nil
}
