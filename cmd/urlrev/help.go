package main

import cli "github.com/urfave/cli/v3"

var rewriteHelp = cli.CommandHelpTemplate + `
SOURCE:
    style sheet file or directory, directories are searched recursively for
    *.css files (symbolic links are not followed)

    Relative references are resolved against directory of the style sheet
    they were found in. Declarations with references which could not be
    hashed are left untouched and reported.

DESTINATION:
    output directory, relative layout of sources is kept
    if absent - current working directory, ignored with --in-place
`

var dumpConfigHelp = cli.CommandHelpTemplate + `
DESTINATION:
    file name to write configuration to, if absent - STDOUT

Active configuration is a composition of default values and values from
configuration file. Use --default to see configuration embedded into the
program.
`
