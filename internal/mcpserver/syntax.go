package mcpserver

// QuerySyntaxGuide describes the boolean free-text query language accepted
// by the case_search and caption_search filters.
const QuerySyntaxGuide = `# Case Hub Query Syntax

Free-text filters (` + "`" + `case_search` + "`" + `, ` + "`" + `caption_search` + "`" + `) use a small boolean language.

## Structure

` + "```" + `text
(term or synonym) AND (term) NOT (excluded or also excluded)
` + "```" + `

## Rules

1. **Groups** are separated by the keywords ` + "`" + `AND` + "`" + ` and ` + "`" + `NOT` + "`" + `
   (any letter case, standalone words only). Text before the first keyword is an AND group.
2. **Synonyms** inside a group are joined by a lowercase ` + "`" + `or` + "`" + ` surrounded by spaces.
   A group matches when any of its terms matches.
3. **Every AND group must match** and **no NOT group may match**.
4. **Matching is whole-word and case-insensitive.** ` + "`" + `ct` + "`" + ` matches "Chest CT" but not
   "actor". Multi-word terms such as ` + "`" + `chest pain` + "`" + ` match as a phrase.
5. **Parentheses and quotes are decoration.** They are stripped from the ends of terms and
   never checked for balance.
6. **An empty query matches everything.** A group whose terms are all empty matches nothing
   when used with AND and excludes nothing when used with NOT.

## Filters

- ` + "`" + `image_type_label` + "`" + ` and ` + "`" + `anatomical_region_label` + "`" + ` must each be present on an image.
  Call ` + "`" + `list_labels` + "`" + ` for the accepted values.
- ` + "`" + `min_age` + "`" + ` 0 and ` + "`" + `max_age` + "`" + ` 100 disable the age bounds, keeping cases with an unknown age.
- ` + "`" + `resource` + "`" + ` is ` + "`" + `text` + "`" + ` (cases), ` + "`" + `image` + "`" + ` (images) or ` + "`" + `both` + "`" + ` (cases with their images).
- Only cases that have at least one selected image are returned.

## Examples

` + "```" + `text
(diabetes or diabetic) AND hypertension
fever NOT (malaria or dengue)
mri AND (brain or head) NOT pediatric
` + "```" + `
`
